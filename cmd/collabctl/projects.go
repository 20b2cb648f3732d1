package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"collab/backend/internal/domain/project"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Work with projects",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the projects you collaborate on",
	Args:  cobra.NoArgs,
	RunE:  runProjectsList,
}

var projectsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectsCreate,
}

var projectsAddCollaboratorCmd = &cobra.Command{
	Use:   "add-collaborator <project-id>",
	Short: "Add a collaborator by uid or email (owner only)",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectsAddCollaborator,
}

var projectsWatchCmd = &cobra.Command{
	Use:   "watch <project-id>",
	Short: "Stream live changes of a project, its tasks or its messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectsWatch,
}

func init() {
	projectsCmd.AddCommand(projectsListCmd, projectsCreateCmd, projectsAddCollaboratorCmd, projectsWatchCmd)
	rootCmd.AddCommand(projectsCmd)

	projectsCreateCmd.Flags().String("description", "", "project description")

	projectsAddCollaboratorCmd.Flags().String("uid", "", "collaborator uid")
	projectsAddCollaboratorCmd.Flags().String("email", "", "collaborator email")

	projectsWatchCmd.Flags().String("what", "project", "project, tasks or messages")
	projectsWatchCmd.Flags().Int("limit", 0, "messages to include (messages only)")
}

func runProjectsList(cmd *cobra.Command, _ []string) error {
	_, api, err := signedIn(cmd.Context())
	if err != nil {
		return err
	}
	ps, err := api.ListProjects(cmd.Context())
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tCOLLABORATORS\tUPDATED")
	for _, p := range ps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", p.ID, p.Name, p.Status, len(p.Collaborators), p.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func runProjectsCreate(cmd *cobra.Command, args []string) error {
	desc, _ := cmd.Flags().GetString("description")
	_, api, err := signedIn(cmd.Context())
	if err != nil {
		return err
	}
	p, err := api.CreateProject(cmd.Context(), project.CreateProjectInput{Name: args[0], Description: desc})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), p)
}

func runProjectsAddCollaborator(cmd *cobra.Command, args []string) error {
	uid, _ := cmd.Flags().GetString("uid")
	email, _ := cmd.Flags().GetString("email")
	if uid == "" && email == "" {
		return errors.New("--uid or --email is required")
	}
	_, api, err := signedIn(cmd.Context())
	if err != nil {
		return err
	}
	p, err := api.AddCollaborator(cmd.Context(), args[0], project.CollaboratorInput{UID: uid, Email: email})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), p)
}

// runProjectsWatch prints every snapshot until interrupted.
func runProjectsWatch(cmd *cobra.Command, args []string) error {
	what, _ := cmd.Flags().GetString("what")
	limit, _ := cmd.Flags().GetInt("limit")
	ctx := cmd.Context()

	_, api, err := signedIn(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	switch what {
	case "project":
		return api.WatchProject(ctx, args[0], func(p *project.Project) error {
			return printJSON(out, p)
		})
	case "tasks":
		return api.WatchTasks(ctx, args[0], func(ts []project.Task) error {
			fmt.Fprintf(out, "--- %d tasks\n", len(ts))
			for _, t := range ts {
				fmt.Fprintf(out, "[%s] %s %s\n", t.Status, t.ID, t.Title)
			}
			return nil
		})
	case "messages":
		return api.WatchMessages(ctx, args[0], limit, func(ms []project.Message) error {
			if len(ms) == 0 {
				return nil
			}
			m := ms[len(ms)-1]
			name := m.AuthorName
			if name == "" {
				name = m.AuthorUID
			}
			fmt.Fprintf(out, "%s  %s: %s\n", m.CreatedAt.Local().Format("15:04:05"), name, m.Text)
			return nil
		})
	default:
		return fmt.Errorf("unknown --what %q: use project, tasks or messages", what)
	}
}
