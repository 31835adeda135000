package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/infotospay/benkinet-neo01-mobile-sub000/credentials/securestore"
	"github.com/infotospay/benkinet-neo01-mobile-sub000/internal/config"
	"github.com/infotospay/benkinet-neo01-mobile-sub000/internal/utils"
	"github.com/infotospay/benkinet-neo01-mobile-sub000/roles"
	"github.com/infotospay/benkinet-neo01-mobile-sub000/session"
	"github.com/infotospay/benkinet-neo01-mobile-sub000/transport"
)

// stack is the wired client core: vault, pipeline, session, roles.
type stack struct {
	client  *transport.Client
	session *session.Manager
	roles   *roles.Registry
}

func buildStack(cfg config.Config) (*stack, error) {
	key := cfg.GetVaultKey()
	if key == "" {
		return nil, errors.New("VAULT_KEY is not set")
	}

	store, err := securestore.New(cfg.GetDataFolder(), []byte(key))
	if err != nil {
		return nil, errors.Wrap(err, "opening credential vault")
	}

	client := transport.New(cfg.GetBaseURL(), store, transport.WithTimeout(cfg.GetHTTPTimeout()))
	mgr, err := session.New(client, store, store, session.WithRefreshTimeout(cfg.GetRefreshTimeout()))
	if err != nil {
		return nil, err
	}
	reg, err := roles.New(client, mgr, store)
	if err != nil {
		return nil, err
	}

	// Restore the persisted active role for an already-authenticated session.
	if mgr.IsAuthenticated() {
		if _, err := reg.LoadRoles(context.Background()); err != nil {
			fmt.Fprintln(os.Stderr, "Warning: could not load roles:", err)
		}
	}
	return &stack{client: client, session: mgr, roles: reg}, nil
}

func loginCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "login <identifier> <secret>",
		Short: "Authenticate and store the session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildStack(cfg)
			if err != nil {
				return err
			}
			sess, err := s.session.Login(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Println("Logged in as", profileName(sess.Profile))
			return nil
		},
	}
}

func verifyOTPCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-otp <identifier> <code>",
		Short: "Complete registration via one-time code",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildStack(cfg)
			if err != nil {
				return err
			}
			sess, err := s.session.VerifyOTP(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Println("Verified and logged in as", profileName(sess.Profile))
			return nil
		},
	}
}

func whoamiCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session and active role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildStack(cfg)
			if err != nil {
				return err
			}
			if !s.session.IsAuthenticated() {
				fmt.Println("Not logged in")
				return nil
			}
			fmt.Println("Logged in as", profileName(s.session.Profile()))
			active := utils.Value(s.roles.Active())
			if active.ID != "" {
				fmt.Printf("Active role: %s (%s, %s)\n", active.DisplayName, active.Kind, active.ID)
			} else {
				fmt.Println("No active role")
			}
			return nil
		},
	}
}

func rolesCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "roles",
		Short: "List available roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildStack(cfg)
			if err != nil {
				return err
			}
			list, err := s.roles.LoadRoles(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No roles available")
				return nil
			}
			activeID, _ := s.roles.ActiveRoleID()
			for _, info := range list {
				marker := " "
				if info.ID == activeID {
					marker = "*"
				}
				fmt.Printf("%s %-12s %-10s %s (%s)\n", marker, info.Kind, info.Status, info.DisplayName, info.ID)
			}
			return nil
		},
	}
}

func switchRoleCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "switch-role <roleID>",
		Short: "Make a role the active authorization context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildStack(cfg)
			if err != nil {
				return err
			}
			if _, err := s.roles.LoadRoles(cmd.Context()); err != nil {
				return err
			}
			info, err := s.roles.SwitchRole(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Active role: %s (%s)\n", info.DisplayName, info.Kind)
			return nil
		},
	}
}

func logoutCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and clear stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildStack(cfg)
			if err != nil {
				return err
			}
			if err := s.session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Logged out")
			return nil
		},
	}
}

func callCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "call <path>",
		Short: "Issue an authenticated GET through the request pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildStack(cfg)
			if err != nil {
				return err
			}
			var out json.RawMessage
			if err := s.client.Get(cmd.Context(), args[0], &out); err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func profileName(profile map[string]any) string {
	for _, key := range []string{"name", "fullName", "username", "email", "phone"} {
		if v, ok := profile[key].(string); ok && v != "" {
			return v
		}
	}
	return "(unnamed user)"
}
