package commands

import (
	"fmt"
	"time"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.wardproxy.dev/ward/internal/ban"
	"go.wardproxy.dev/ward/internal/config"
)

func banCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ban",
		Short: "manage the proxy's ban list",
	}
	root.AddCommand(banAddCmd())
	root.AddCommand(banRemoveCmd())
	root.AddCommand(banListCmd())
	return root
}

func openConfiguredBanStore() (ban.Store, error) {
	var cfg config.Config
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("ward: load config: %w", err)
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("ward: parse config: %w", err)
	}
	return openBanStore(cfg.BanStorePath)
}

func banAddCmd() *cobra.Command {
	var ip, uuidStr, username, reason, bannedBy string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "add",
		Short: "add a ban entry by IP, player UUID, and/or username",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ip == "" && uuidStr == "" && username == "" {
				return fmt.Errorf("ward: at least one of --ip, --uuid, --username is required")
			}
			store, err := openConfiguredBanStore()
			if err != nil {
				return err
			}
			e := ban.NewEntry(ip, uuidStr, username, reason, bannedBy, ttl)
			if err := store.Add(e); err != nil {
				return err
			}
			color.Green.Printf("added ban %s\n", e.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&ip, "ip", "", "ban by IP address")
	cmd.Flags().StringVar(&uuidStr, "uuid", "", "ban by player UUID")
	cmd.Flags().StringVar(&username, "username", "", "ban by username")
	cmd.Flags().StringVar(&reason, "reason", "", "ban reason shown to the player")
	cmd.Flags().StringVar(&bannedBy, "by", "cli", "operator name recorded in the audit log")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "ban duration; zero means permanent")
	return cmd
}

func banRemoveCmd() *cobra.Command {
	var id, ip, uuidStr, username, removedBy string

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "remove ban entries by ID, IP, player UUID, or username",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openConfiguredBanStore()
			if err != nil {
				return err
			}
			switch {
			case id != "":
				e, err := store.RemoveByID(id, removedBy)
				if err != nil {
					return err
				}
				color.Green.Printf("removed ban %s\n", e.ID)
			case ip != "":
				es, err := store.RemoveByIP(ip, removedBy)
				if err != nil {
					return err
				}
				color.Green.Printf("removed %d ban(s)\n", len(es))
			case uuidStr != "":
				es, err := store.RemoveByUUID(uuidStr, removedBy)
				if err != nil {
					return err
				}
				color.Green.Printf("removed %d ban(s)\n", len(es))
			case username != "":
				es, err := store.RemoveByUsername(username, removedBy)
				if err != nil {
					return err
				}
				color.Green.Printf("removed %d ban(s)\n", len(es))
			default:
				return fmt.Errorf("ward: one of --id, --ip, --uuid, --username is required")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "remove by ban entry ID")
	cmd.Flags().StringVar(&ip, "ip", "", "remove by IP address")
	cmd.Flags().StringVar(&uuidStr, "uuid", "", "remove by player UUID")
	cmd.Flags().StringVar(&username, "username", "", "remove by username")
	cmd.Flags().StringVar(&removedBy, "by", "cli", "operator name recorded in the audit log")
	return cmd
}

func banListCmd() *cobra.Command {
	var offset, limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "list current ban entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openConfiguredBanStore()
			if err != nil {
				return err
			}
			for _, e := range store.List(offset, limit) {
				expiry := "never"
				expiryColor := color.Red
				if e.ExpiresAt != nil {
					expiry = e.ExpiresAt.Format(time.RFC3339)
					expiryColor = color.Yellow
				}
				fmt.Printf("%s ip=%q uuid=%q username=%q reason=%q expires=", e.ID, e.IP, e.UUID, e.Username, e.Reason)
				expiryColor.Println(expiry)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "pagination offset")
	cmd.Flags().IntVar(&limit, "limit", 0, "pagination limit; zero means no limit")
	return cmd
}
