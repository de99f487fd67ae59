package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	campusfind "github.com/akash-dev-18/campusfind-go"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat <peer-id>",
	Short: "Open a live conversation with another user",
	Long:  "Open an interactive chat over the live connection.\nType a message and press enter to send; /quit exits.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		peerID := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Auth.UserID == "" {
			return fmt.Errorf("not logged in, run 'campusfind login' first")
		}

		client := getClient()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		peer, err := client.Users.Get(ctx, peerID)
		if err != nil {
			return fmt.Errorf("cannot resolve peer: %w", err)
		}

		rt := client.Realtime(&campusfind.RealtimeConfig{})
		session := campusfind.NewSession(&campusfind.SessionConfig{
			SelfID:    cfg.Auth.UserID,
			Transport: rt,
			Messages:  client.Messages,
			Users:     client.Users,
			Notify: func(n campusfind.Notification) {
				fmt.Printf("\r[new message from %s] %s\n> ", n.SenderName, n.Preview)
			},
		})
		session.Wire(rt)

		rt.OnMessage(func(m campusfind.Message) {
			if m.SenderID == peerID {
				fmt.Printf("\r%s: %s\n> ", peer.DisplayName(), m.Content)
			}
		})
		rt.OnTyping(func(ev campusfind.TypingEvent) {
			if ev.UserID == peerID && ev.IsTyping {
				fmt.Printf("\r%s is typing...\n> ", peer.DisplayName())
			}
		})
		rt.OnDisconnected(func(code int, reason string) {
			fmt.Printf("\r[disconnected: %s]\n> ", reason)
		})

		if err := rt.Connect(ctx); err != nil {
			return fmt.Errorf("connect failed: %w", err)
		}
		defer rt.Disconnect()

		if err := session.SelectPeer(ctx, peerID); err != nil {
			return fmt.Errorf("cannot load history: %w", err)
		}
		for _, m := range session.Messages(peerID) {
			name := "you"
			if m.SenderID == peerID {
				name = peer.DisplayName()
			}
			fmt.Printf("%s: %s\n", name, m.Content)
		}

		fmt.Printf("Chatting with %s. /quit to exit.\n", peer.DisplayName())
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "/quit" {
				break
			}
			if line != "" {
				sendCtx, sendCancel := context.WithTimeout(ctx, 15*time.Second)
				_, err := session.Send(sendCtx, peerID, line)
				sendCancel()
				if err != nil {
					fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
				}
			}
			fmt.Print("> ")
		}
		return scanner.Err()
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
