package users

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SevenofThr4wn/HardwareStore/internal/config"
)

var (
	cfg    *config.Config
	logger *zap.Logger
)

// SetConfig hands the loaded configuration and logger to the users commands.
func SetConfig(c *config.Config, l *zap.Logger) {
	cfg = c
	logger = l
}

// UsersCmd is the parent command for local user operations
var UsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Inspect users mirrored from the directory",
	Long:  `Read-only commands over the local_users table. Users are managed in Keycloak.`,
}

func init() {
	listCmd.Flags().IntVar(&limitFlag, "limit", 0, "Maximum number of users to print (0 = all)")
	listCmd.Flags().IntVar(&offsetFlag, "offset", 0, "Number of users to skip")
	listCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print users as JSON")

	UsersCmd.AddCommand(listCmd)
}
