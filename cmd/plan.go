package cmd

import (
	"fmt"
	"io"

	"github.com/smazurov/pzmanager/internal/launch"
	"github.com/smazurov/pzmanager/internal/logging"
	"github.com/smazurov/pzmanager/internal/profiles"
	"github.com/spf13/cobra"
)

// CreatePlanCmd creates the plan command.
func CreatePlanCmd() *cobra.Command {
	var serversFile string

	cmd := &cobra.Command{
		Use:   "plan [server-id]",
		Short: "Print the command a server would be launched with",
		Long: `Resolves the launcher for the given server profile and prints the command line, ` +
			`working directory and launch mode without starting anything.`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return printPlan(c.OutOrStdout(), serversFile, args[0])
		},
	}

	cmd.Flags().StringVar(&serversFile, "servers", "servers.toml", "Path to server profiles file")

	return cmd
}

func printPlan(out io.Writer, serversFile, id string) error {
	profile, params, err := loadProfile(serversFile, id)
	if err != nil {
		return err
	}

	planner := launch.NewPlanner(logging.GetLogger("launch"))
	planner.Warn = func(_ string, err error) {
		fmt.Fprintf(out, "warning: %v\n", err)
	}

	spec, err := planner.Plan(id, params)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "server:   %s\n", profile.ID)
	fmt.Fprintf(out, "mode:     %s\n", spec.Mode)
	fmt.Fprintf(out, "launcher: %s\n", spec.Launcher)
	fmt.Fprintf(out, "dir:      %s\n", spec.Dir)
	fmt.Fprintf(out, "config:   %s\n", spec.ConfigDir)
	fmt.Fprintf(out, "command:  %s\n", spec.String())
	if spec.Mode == launch.ModeShell {
		fmt.Fprintln(out, "warning: no bundled Java runtime found, the launcher script runs as-is and memory settings are ignored")
	}
	return nil
}

// loadProfile reads serversFile and returns the profile and launch
// parameters for id.
func loadProfile(serversFile, id string) (profiles.Profile, launch.Params, error) {
	set, err := profiles.Load(serversFile)
	if err != nil {
		return profiles.Profile{}, launch.Params{}, err
	}
	profile, ok := set.Get(id)
	if !ok {
		return profiles.Profile{}, launch.Params{}, fmt.Errorf("%w: %s in %s", profiles.ErrNotFound, id, serversFile)
	}
	params, err := profile.Params()
	if err != nil {
		return profiles.Profile{}, launch.Params{}, err
	}
	return profile, params, nil
}
