package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-clinic-session/auth"
	"github.com/jrsteele09/go-clinic-session/host"
	"github.com/jrsteele09/go-clinic-session/internal/config"
	"github.com/jrsteele09/go-clinic-session/internal/logging"
	"github.com/jrsteele09/go-clinic-session/profiles"
	"github.com/jrsteele09/go-clinic-session/profiles/pgrepo"
	"github.com/spf13/cobra"
)

type credentials struct {
	email    string
	password string
	role     string // memory mode only: role of the seeded account
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	creds := &credentials{}
	root := &cobra.Command{
		Use:           "clinicctl",
		Short:         "Clinic session lifecycle tool",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&creds.email, "email", os.Getenv("CLINIC_EMAIL"), "account email")
	root.PersistentFlags().StringVar(&creds.password, "password", os.Getenv("CLINIC_PASSWORD"), "account password")
	root.PersistentFlags().StringVar(&creds.role, "seed-role", string(profiles.RoleAdmin), "role of the account seeded in memory mode")

	root.AddCommand(signInCmd(creds))
	root.AddCommand(whoamiCmd(creds))
	root.AddCommand(signUpCmd())
	root.AddCommand(watchCmd(creds))
	root.AddCommand(migrateCmd())
	return root
}

// withApp builds the app for one command invocation and tears it down after.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.New()
	logger := logging.New(cfg)
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func signInAs(ctx context.Context, a *app, creds *credentials) (auth.State, error) {
	if a.cfg.GetIdentityMode() == config.IdentityModeMemory {
		role, err := profiles.ParseRole(creds.role)
		if err != nil {
			return auth.State{}, err
		}
		if err := a.seedMemoryAccount(ctx, creds.email, creds.password, role); err != nil {
			return auth.State{}, err
		}
	}
	return a.signIn(ctx, creds.email, creds.password)
}

func signInCmd(creds *credentials) *cobra.Command {
	return &cobra.Command{
		Use:   "signin",
		Short: "Sign in and print the resulting profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				state, err := signInAs(ctx, a, creds)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s (%s), session expires %s\n",
					state.Profile.FullName, state.Profile.Role, state.Session.Expiry().Format("15:04:05"))
				return nil
			})
		},
	}
}

type whoami struct {
	UserID   string          `json:"user_id"`
	Email    string          `json:"email"`
	FullName string          `json:"full_name"`
	Role     profiles.Role   `json:"role"`
	Areas    []profiles.Area `json:"areas"`
}

func whoamiCmd(creds *credentials) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Sign in and print the identity and the areas it may open as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				state, err := signInAs(ctx, a, creds)
				if err != nil {
					return err
				}
				out := whoami{
					UserID:   state.Identity.ID,
					Email:    state.Identity.Email,
					FullName: state.Profile.FullName,
					Role:     state.Profile.Role,
				}
				for _, area := range profiles.Areas {
					if state.Can(area) {
						out.Areas = append(out.Areas, area)
					}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			})
		},
	}
}

func signUpCmd() *cobra.Command {
	var (
		req  auth.SignUpRequest
		role string
	)
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and its clinic profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := profiles.ParseRole(role)
			if err != nil {
				return err
			}
			req.Role = r
			return withApp(cmd, func(ctx context.Context, a *app) error {
				profile, err := a.manager.SignUp(ctx, req)
				if errors.Is(err, auth.ErrOrphanedAccount) {
					var signUpErr *auth.SignUpError
					errors.As(err, &signUpErr)
					a.logger.Error().Str("user_id", signUpErr.UserID).Msg("account left without profile, remove it manually")
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) with profile %s\n", req.Email, profile.Role, profile.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&req.Password, "password", "", "account password")
	cmd.Flags().StringVar(&req.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&req.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&role, "role", string(profiles.RoleCashier), "admin, doctor or cashier")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func watchCmd(creds *credentials) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Sign in and keep the session alive, logging every transition",
		Long: `Signs in and keeps the session refreshed until interrupted.
SIGUSR1 is treated as the host becoming visible and SIGUSR2 as it being hidden.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				displayAppname(a.cfg.GetAppName())
				if _, err := signInAs(ctx, a, creds); err != nil {
					return err
				}

				unsubscribe := a.manager.Subscribe(func(s auth.State) {
					evt := a.logger.Info().Str("status", string(s.Status)).Bool("visible", s.Visible).Uint64("version", s.Version)
					if s.Session != nil {
						evt = evt.Time("expires_at", s.Session.Expiry())
					}
					if s.LastError != nil {
						evt = evt.AnErr("last_error", s.LastError)
					}
					evt.Msg("session state")
				})
				defer unsubscribe()

				go host.Relay(ctx, a.manager, map[os.Signal]host.Signal{
					syscall.SIGUSR1: host.SignalVisible,
					syscall.SIGUSR2: host.SignalHidden,
				})
				a.manager.RunExpiryMonitor(ctx, a.cfg.GetPollInterval())
				return a.manager.SignOut(context.WithoutCancel(ctx))
			})
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the profiles table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.New()
			logger := logging.New(cfg)
			if cfg.GetDatabaseURL() == "" {
				return errors.New("DATABASE_URL is required")
			}
			pool, err := pgrepo.Connect(cmd.Context(), cfg.GetDatabaseURL(), cfg.GetMaxConns())
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := pgrepo.New(pool).Migrate(cmd.Context()); err != nil {
				return err
			}
			logger.Info().Msg("profiles table ready")
			return nil
		},
	}
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
