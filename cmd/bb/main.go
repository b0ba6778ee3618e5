package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"brewboard/internal/app"
	"brewboard/internal/config"
	"brewboard/internal/db"
	"brewboard/internal/domain"
	"brewboard/internal/engine"
	"brewboard/internal/notify"
	"brewboard/internal/repo"
	"brewboard/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "bb",
	Short: "BrewBoard CLI",
	Long: `BrewBoard is a task-reward board for shared spaces.
Admins post chores (tea, coffee, snacks, meals) with a reward; anyone can
browse them. Registered users submit completions, admins approve them, and
the reward lands on the user's balance. Balances can be put up for
withdrawal; the withdrawal queue is reviewed out of band.
The workspace keeps its state in .brewboard/ next to brewboard.yml.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BREWBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "caller identity")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(completionCmd())
	rootCmd.AddCommand(withdrawalCmd())
	rootCmd.AddCommand(roleCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(contactCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace with a default brewboard.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			a, err := app.Open(cmd.Context(), workspace)
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Printf("Initialized workspace: %s (db at %s)\n", path, db.Path(workspace))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the board status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				counts, err := e.BoardStatus(ctx)
				if err != nil {
					return err
				}
				total := 0
				for _, n := range counts {
					total += n
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"task_counts": counts, "total_tasks": total})
				}
				fmt.Printf("Tasks: %d\n", total)
				for _, status := range []domain.TaskStatus{domain.TaskAvailable, domain.TaskInProgress, domain.TaskCompleted} {
					fmt.Printf("  %-12s %d\n", status, counts[string(status)])
				}
				return nil
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "Manage tasks"}
	cmd.AddCommand(taskAddCmd())
	cmd.AddCommand(taskListCmd())
	cmd.AddCommand(taskGetCmd())
	cmd.AddCommand(taskSetStatusCmd())
	return cmd
}

func taskAddCmd() *cobra.Command {
	var title, description, category string
	var reward uint64
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a task (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.AddTask(ctx, viper.GetString("actor-id"), engine.AddTaskOptions{
					Title:       title,
					Description: description,
					Reward:      reward,
					Category:    domain.Category(category),
				})
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().Uint64Var(&reward, "reward", 0, "reward amount")
	cmd.Flags().StringVar(&category, "category", "", "category: tea, coffee, snacks or meals")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("reward")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func taskListCmd() *cobra.Command {
	var status, category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				filters := repo.TaskFilters{Category: domain.Category(category)}
				if status != "all" {
					if status == "" {
						status = string(domain.TaskAvailable)
					}
					filters.Status = domain.TaskStatus(status)
				}
				tasks, err := e.ListTasks(ctx, filters)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Category", "Reward", "Status"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Category, t.Reward, t.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (available, inProgress, completed, all)")
	cmd.Flags().StringVar(&category, "category", "", "category filter")
	return cmd
}

func taskGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTask(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	return cmd
}

func taskSetStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "set-status <id>",
		Short: "Update task status (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.SetTaskStatus(ctx, viper.GetString("actor-id"), id, domain.TaskStatus(status))
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status: available, inProgress or completed")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage user profiles"}
	cmd.AddCommand(userRegisterCmd())
	cmd.AddCommand(userProfileCmd())
	cmd.AddCommand(userBalanceCmd())
	cmd.AddCommand(userListCmd())
	return cmd
}

func userListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered profiles (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				profiles, err := e.ListProfiles(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(profiles)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Actor", "Username", "Balance", "Registered"})
				for _, p := range profiles {
					tw.AppendRow(table.Row{p.ActorID, p.Username, p.Balance, p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func userRegisterCmd() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register the calling identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.RegisterUser(ctx, viper.GetString("actor-id"), username)
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "display name")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func userProfileCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show a profile (own by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				callerID := viper.GetString("actor-id")
				if target == "" {
					p, err := e.CallerProfile(ctx, callerID)
					if err != nil {
						return err
					}
					if p == nil {
						fmt.Println("not registered")
						return nil
					}
					return printJSON(p)
				}
				p, err := e.UserProfile(ctx, callerID, target)
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "identity to look up (admin)")
	return cmd
}

func userBalanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show the caller's reward balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				balance, err := e.MyBalance(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(map[string]uint64{"balance": balance})
			})
		},
	}
	return cmd
}

func completionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "completion", Short: "Submit and approve task completions"}
	cmd.AddCommand(completionSubmitCmd())
	cmd.AddCommand(completionApproveCmd())
	cmd.AddCommand(completionListCmd())
	cmd.AddCommand(completionPendingCmd())
	return cmd
}

func completionSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <task-id>",
		Short: "Submit a completion for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.SubmitCompletion(ctx, viper.GetString("actor-id"), id)
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
	return cmd
}

func completionApproveCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "approve <task-id>",
		Short: "Approve a completion and credit the reward (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.ApproveCompletion(ctx, viper.GetString("actor-id"), id, userID)
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "identity that submitted the completion")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func completionListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the caller's completions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.MyCompletions(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printCompletions(items)
			})
		},
	}
	return cmd
}

func completionPendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List completions awaiting approval (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.PendingCompletions(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printCompletions(items)
			})
		},
	}
	return cmd
}

func printCompletions(items []domain.Completion) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Task", "User", "Completed", "Approved"})
	for _, c := range items {
		approved := "no"
		if c.Approved {
			approved = "yes"
		}
		tw.AppendRow(table.Row{c.TaskID, c.UserID, c.CompletedAt, approved})
	}
	tw.Render()
	return nil
}

func withdrawalCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "withdrawal", Short: "Request and list withdrawals"}
	cmd.AddCommand(withdrawalRequestCmd())
	cmd.AddCommand(withdrawalListCmd())
	return cmd
}

func withdrawalRequestCmd() *cobra.Command {
	var amount uint64
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Request a reward withdrawal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.RequestWithdrawal(ctx, viper.GetString("actor-id"), amount)
				if err != nil {
					return err
				}
				return printJSON(w)
			})
		},
	}
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount to withdraw")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func withdrawalListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List withdrawal requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListWithdrawals(ctx, viper.GetString("actor-id"), userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "filter by identity (admin)")
	return cmd
}

func roleCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "role", Short: "Manage roles"}
	cmd.AddCommand(roleAssignCmd())
	cmd.AddCommand(roleShowCmd())
	cmd.AddCommand(roleListCmd())
	return cmd
}

func roleListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List explicit role assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				roles, err := e.Repo.ListRoles(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(roles)
				}
				actors := make([]string, 0, len(roles))
				for actor := range roles {
					actors = append(actors, actor)
				}
				sort.Strings(actors)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Actor", "Role"})
				for _, actor := range actors {
					tw.AppendRow(table.Row{actor, roles[actor]})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func roleAssignCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign a role to an identity (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.AssignRole(ctx, viper.GetString("actor-id"), target, domain.Role(role)); err != nil {
					return err
				}
				fmt.Printf("%s is now %s\n", target, role)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "identity")
	cmd.Flags().StringVar(&role, "role", "", "role: admin, user or guest")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func roleShowCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show an identity's role",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if target == "" {
					target = viper.GetString("actor-id")
				}
				role, err := e.RoleOf(ctx, target)
				if err != nil {
					return err
				}
				return printJSON(map[string]string{"actor_id": target, "role": string(role)})
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "identity (defaults to caller)")
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyRevokeCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var target, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key (admin); the plaintext is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, plain, err := e.CreateAPIKey(ctx, viper.GetString("actor-id"), target, name)
				if err != nil {
					return err
				}
				return printJSON(map[string]string{
					"id":       key.ID,
					"actor_id": key.ActorID,
					"key":      plain,
				})
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "identity the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.ListAPIKeys(ctx, viper.GetString("actor-id"), target)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "filter by identity")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RevokeAPIKey(ctx, viper.GetString("actor-id"), args[0])
			})
		},
	}
	return cmd
}

func contactCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "contact", Short: "Contact form messages"}
	cmd.AddCommand(contactSubmitCmd())
	cmd.AddCommand(contactListCmd())
	return cmd
}

func contactSubmitCmd() *cobra.Command {
	var name, email, message string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit the contact form",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.SubmitContactForm(ctx, name, email, message)
				if err != nil {
					return err
				}
				return printJSON(m)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "sender name")
	cmd.Flags().StringVar(&email, "email", "", "reply-to address")
	cmd.Flags().StringVar(&message, "message", "", "message text")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func contactListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored contact messages (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListContactMessages(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Received", "Name", "Email", "Message"})
				for _, m := range items {
					tw.AppendRow(table.Row{m.ReceivedAt, m.Name, m.Email, m.Message})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, repo.EventFilters{
					Type:       evtType,
					EntityKind: entityKind,
					EntityID:   entityID,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			a, err := app.Open(cmd.Context(), workspace)
			if err != nil {
				return err
			}
			defer a.Close()
			authCfg := server.AuthConfig{
				JWTSecret:              a.Config.Auth.JWTSecret,
				TokenTTLSeconds:        a.Config.Auth.TokenTTLSeconds,
				AllowLegacyActorHeader: a.Config.Auth.AllowLegacyActorHeader,
			}
			if secret := os.Getenv("BREWBOARD_JWT_SECRET"); secret != "" {
				authCfg.JWTSecret = secret
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowLegacyActorHeader {
				return fmt.Errorf("a JWT secret is required when the legacy actor header is disabled")
			}
			handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			if started, err := notify.StartMailer(a.Engine); err != nil {
				return err
			} else if started {
				fmt.Println("Contact-form mail notifier running")
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving BrewBoard API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	a, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Engine)
}

func parseTaskID(arg string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid task id %q", arg)
	}
	return id, nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
