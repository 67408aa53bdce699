package cmd

import (
	"fmt"
	"strings"

	"github.com/marcus/nhatky/internal/output"
	"github.com/marcus/nhatky/internal/syncconfig"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Save the account, farm unit and API token to the config file",
	Long: `Stores the given values in ~/.config/nhatky/config.yaml. Flags that are
not given keep their saved value. NHATKY_* environment variables still take
precedence at runtime.`,
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fields := map[string]func(*syncconfig.Config, string){
			"user":    func(c *syncconfig.Config, v string) { c.UserID = v },
			"unit":    func(c *syncconfig.Config, v string) { c.UnitID = v },
			"token":   func(c *syncconfig.Config, v string) { c.Token = v },
			"api-url": func(c *syncconfig.Config, v string) { c.APIURL = v },
		}
		set := map[string]string{}
		for name := range fields {
			if cmd.Flags().Changed(name) {
				v, _ := cmd.Flags().GetString(name)
				set[name] = strings.TrimSpace(v)
			}
		}
		if len(set) == 0 {
			return fail(cmd, invalidInput("nothing to save; pass --user, --unit, --token or --api-url"))
		}

		saved, err := syncconfig.Update(func(c *syncconfig.Config) {
			for name, v := range set {
				fields[name](c, v)
			}
		})
		if err != nil {
			return fail(cmd, err)
		}
		logger.Info("login: config saved", "user_id", saved.UserID, "unit_id", saved.UnitID)

		if jsonOutput(cmd) {
			return output.JSON(map[string]any{
				"user_id":   saved.UserID,
				"unit_id":   saved.UnitID,
				"api_url":   saved.ServerURL(),
				"has_token": saved.Token != "",
			})
		}
		output.Success("Saved login for %s", saved.UserID)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Erase every local record, queued change and cached response",
	Long: `Wipes the local store. Queued changes that never reached the server are
lost, so the command refuses while any exist unless --force is given.`,
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return fail(cmd, err)
		}
		defer store.Close()
		ctx := cmd.Context()

		counts, err := store.SyncCounts(ctx)
		if err != nil {
			return fail(cmd, err)
		}
		force, _ := cmd.Flags().GetBool("force")
		if lost := counts.Unsynced() + counts.Dead; lost > 0 && !force {
			return fail(cmd, invalidInput("%d unsynced change(s) would be lost; run 'nhatky sync' first or pass --force", lost))
		}

		if err := store.ClearAll(ctx); err != nil {
			return fail(cmd, err)
		}
		if !jsonOutput(cmd) {
			output.Success("Local data cleared")
		}
		return nil
	},
}

var requeueCmd = &cobra.Command{
	Use:     "requeue",
	Short:   "Retry changes the sync engine gave up on",
	GroupID: "sync",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return fail(cmd, err)
		}
		defer store.Close()

		n, err := store.RequeueDead(cmd.Context())
		if err != nil {
			return fail(cmd, err)
		}
		if jsonOutput(cmd) {
			return output.JSON(map[string]int{"requeued": n})
		}
		fmt.Printf("Requeued %d change(s)\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, requeueCmd)
	loginCmd.Flags().String("user", "", "Account (user) ID")
	loginCmd.Flags().String("unit", "", "Farm unit ID")
	loginCmd.Flags().String("token", "", "API bearer token")
	loginCmd.Flags().String("api-url", "", "API base URL")
	logoutCmd.Flags().Bool("force", false, "Discard unsynced changes too")
}
