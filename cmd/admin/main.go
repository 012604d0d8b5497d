// Command admin provides operator utilities for Canopy: maps, invitations
// and accounts that the HTTP API does not expose.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"canopy/internal/config"
	"canopy/internal/database"
	"canopy/internal/models"
	"canopy/internal/repository"
	"canopy/internal/service"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// opener yields the database the commands run against.
type opener func() (*gorm.DB, error)

func openConfigured() (*gorm.DB, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return database.Connect(cfg)
}

type services struct {
	users *service.UserService
	maps  *service.MapService
}

func newRootCmd(open opener) *cobra.Command {
	svc := &services{}

	root := &cobra.Command{
		Use:           "admin",
		Short:         "Canopy operator tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			userRepo := repository.NewUserRepository(db)
			svc.users = service.NewUserService(userRepo)
			svc.maps = service.NewMapService(repository.NewMapRepository(db), userRepo)
			return nil
		},
	}

	root.AddCommand(
		ensurePublicCmd(svc),
		createMapCmd(svc),
		inviteCmd(svc),
		listUsersCmd(svc),
		listMapsCmd(svc),
		createAdminCmd(svc),
	)
	return root
}

func ensurePublicCmd(svc *services) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure-public-map",
		Short: "Create the ownerless Public map if it is missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := svc.maps.EnsurePublic(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Public map ready (ID: %d)\n", m.ID)
			return nil
		},
	}
}

func createMapCmd(svc *services) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "create-map <name>",
		Short: "Create a map owned by an existing user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := svc.users.GetUserByEmail(cmd.Context(), strings.ToLower(strings.TrimSpace(owner)))
			if err != nil {
				return err
			}
			m, err := svc.maps.Create(cmd.Context(), user.ID, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Created map %q (ID: %d) owned by %s\n", m.Name, m.ID, user.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner email")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func inviteCmd(svc *services) *cobra.Command {
	return &cobra.Command{
		Use:   "invite <map> <email>",
		Short: "Grant a user access to a map",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := svc.maps.InviteAsOperator(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ %s can now open %q\n", strings.ToLower(args[1]), m.Name)
			return nil
		},
	}
}

func listUsersCmd(svc *services) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list-users",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			users, err := svc.users.ListUsers(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			return printUsers(cmd.OutOrStdout(), users)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Offset")
	return cmd
}

func printUsers(out io.Writer, users []models.User) error {
	if len(users) == 0 {
		fmt.Fprintln(out, "No users found")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE")
	for _, u := range users {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", u.ID, u.Name, u.Email, u.Role)
	}
	return w.Flush()
}

func listMapsCmd(svc *services) *cobra.Command {
	return &cobra.Command{
		Use:   "list-maps",
		Short: "List every map with its owner and invitations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			maps, err := svc.maps.ListAll(cmd.Context())
			if err != nil {
				return err
			}
			return printMaps(cmd.Context(), cmd.OutOrStdout(), svc.users, maps)
		},
	}
}

func printMaps(ctx context.Context, out io.Writer, users *service.UserService, maps []models.Map) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tOWNER\tINVITED")
	for _, m := range maps {
		owner := "(public)"
		if !m.IsPublic() {
			u, err := users.GetUserByID(ctx, *m.OwnerID)
			if err != nil {
				return err
			}
			owner = u.Email
		}
		invited := make([]string, 0, len(m.InvitedUsers))
		for _, u := range m.InvitedUsers {
			invited = append(invited, u.Email)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", m.ID, m.Name, owner, strings.Join(invited, ","))
	}
	return w.Flush()
}

func createAdminCmd(svc *services) *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an ADMIN account; admins cannot register over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("CANOPY_ADMIN_PASSWORD")
			}
			if password == "" {
				return fmt.Errorf("--password or CANOPY_ADMIN_PASSWORD is required")
			}
			u, err := svc.users.CreateWithRole(cmd.Context(), name, email, password, models.RoleAdmin)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Created admin %s (ID: %d)\n", u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "Administrator", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Login email")
	cmd.Flags().StringVar(&password, "password", "", "Password (defaults to $CANOPY_ADMIN_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func main() {
	var db *gorm.DB
	root := newRootCmd(func() (*gorm.DB, error) {
		var err error
		db, err = openConfigured()
		return db, err
	})

	err := root.ExecuteContext(context.Background())
	_ = database.Close(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
