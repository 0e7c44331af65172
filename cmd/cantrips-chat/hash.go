package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/luciancaetano/cantrips/chat"
)

// hashCmd prints the bcrypt hash used for chat.users[].password_hash.
var hashCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print the bcrypt hash of a password",
	Long:  "Hash a password for the users section of the configuration. Without an argument the password is read from stdin.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var password string
		if len(args) == 1 {
			password = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}
		if password == "" {
			return errors.New("password must not be empty")
		}

		hash, err := chat.HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashCmd)
}
