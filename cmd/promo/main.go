package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cl "promotion/internal/cli"
	"promotion/internal/config"
	"promotion/internal/economy"

	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL
	configureOutput()

	root := &cobra.Command{
		Use:          "promo",
		Short:        "Promotion market terminal client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newDashCmd(&apiBase),
		newRespectCmd(&apiBase),
		newShareholdersCmd(&apiBase),
		newPlayersCmd(&apiBase),
		newCompanyCmd(&apiBase),
		newPostsCmd(&apiBase),
		newNotificationsCmd(&apiBase),
		newCrashCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		printError(fmt.Sprintf("error: %v", err))
		os.Exit(1)
	}
}

// withClient loads the saved identity and runs fn with a 30s deadline.
func withClient(cmd *cobra.Command, apiBase *string, fn func(context.Context, *cl.Client, cl.Session) error) error {
	sess, err := cl.LoadSession()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	return fn(ctx, cl.NewClient(strings.TrimSpace(*apiBase), sess), sess)
}

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login [user-id] [display-name]",
		Short: "Save the identity sent with every request",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := argOrPrompt(args, 0, "User ID", true)
			if err != nil {
				return err
			}
			name, err := argOrPrompt(args, 1, "Display name (optional)", false)
			if err != nil {
				return err
			}
			if name == "" {
				name = userID
			}
			if err := cl.SaveSession(cl.Session{UserID: userID, UserName: name}); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Logged in as %s.", name))
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newDashCmd(apiBase *string) *cobra.Command {
	var marketCap int64
	dash := &cobra.Command{
		Use:   "dash",
		Short: "Show your market cap, rank and daily quota",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, apiBase, func(ctx context.Context, c *cl.Client, sess cl.Session) error {
				var (
					out map[string]any
					err error
				)
				if cmd.Flags().Changed("sync") {
					out, err = c.SyncMarket(ctx, &marketCap)
				} else {
					out, err = c.Market(ctx)
				}
				if err != nil {
					return err
				}
				return renderDashboard(out, sess)
			})
		},
	}
	dash.Flags().Int64Var(&marketCap, "sync", 0, "overwrite the local market cap with this value first")
	return dash
}

func newRespectCmd(apiBase *string) *cobra.Command {
	var (
		postID string
		amount int64
	)
	respect := &cobra.Command{
		Use:   "respect <user-id>",
		Short: "Send respect to a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if amount < 1 {
				return economy.ErrInvalidAmount
			}
			return withClient(cmd, apiBase, func(ctx context.Context, c *cl.Client, _ cl.Session) error {
				out, err := c.SendRespect(ctx, strings.TrimSpace(args[0]), strings.TrimSpace(postID), amount)
				if err != nil {
					return err
				}
				return renderRespect(out, args[0])
			})
		},
	}
	respect.Flags().StringVar(&postID, "post", "", "post being respected")
	respect.Flags().Int64Var(&amount, "amount", 1, "number of respects")
	return respect
}

func newShareholdersCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "shareholders [user-id]",
		Short: "List the top shareholders of a user (default: you)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, apiBase, func(ctx context.Context, c *cl.Client, sess cl.Session) error {
				userID := sess.UserID
				if len(args) > 0 {
					userID = strings.TrimSpace(args[0])
				}
				out, err := c.Shareholders(ctx, userID)
				if err != nil {
					return err
				}
				return renderShareholders(out)
			})
		},
	}
}

func newPlayersCmd(apiBase *string) *cobra.Command {
	var limit int
	players := &cobra.Command{
		Use:   "players",
		Short: "Player leaderboard by market cap",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, apiBase, func(ctx context.Context, c *cl.Client, sess cl.Session) error {
				out, err := c.Players(ctx, limit)
				if err != nil {
					return err
				}
				return renderPlayers(out, sess.UserID)
			})
		},
	}
	players.Flags().IntVar(&limit, "limit", 20, "number of players")
	return players
}

func newCompanyCmd(apiBase *string) *cobra.Command {
	company := &cobra.Command{
		Use:   "company",
		Short: "Company commands",
	}
	company.AddCommand(&cobra.Command{
		Use:   "ranking",
		Short: "Rank every company by market cap",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, apiBase, func(ctx context.Context, c *cl.Client, _ cl.Session) error {
				out, err := c.CompanyRanking(ctx)
				if err != nil {
					return err
				}
				return renderCompanyRanking(out)
			})
		},
	})

	var description string
	create := &cobra.Command{
		Use:   "create [name]",
		Short: "Found a startup (10M market cap and 課長 or above)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := argOrPrompt(args, 0, "Company name", true)
			if err != nil {
				return err
			}
			return withClient(cmd, apiBase, func(ctx context.Context, c *cl.Client, _ cl.Session) error {
				out, err := c.CreateCompany(ctx, name, description)
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Founded %s.", name))
				return renderCompany(out)
			})
		},
	}
	create.Flags().StringVar(&description, "description", "", "company description")
	company.AddCommand(create)

	company.AddCommand(&cobra.Command{
		Use:   "join <company-id>",
		Short: "Join a company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, apiBase, func(ctx context.Context, c *cl.Client, _ cl.Session) error {
				out, err := c.JoinCompany(ctx, strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				printSuccess("Joined.")
				return renderCompany(out)
			})
		},
	})
	company.AddCommand(&cobra.Command{
		Use:   "leave",
		Short: "Leave your company",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, apiBase, func(ctx context.Context, c *cl.Client, _ cl.Session) error {
				if err := c.LeaveCompany(ctx); err != nil {
					return err
				}
				printSuccess("Left the company.")
				return nil
			})
		},
	})
	company.AddCommand(&cobra.Command{
		Use:   "show [company-id]",
		Short: "Show a company (default: yours) and your contribution",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, apiBase, func(ctx context.Context, c *cl.Client, _ cl.Session) error {
				id := ""
				if len(args) > 0 {
					id = strings.TrimSpace(args[0])
				} else {
					market, err := c.Market(ctx)
					if err != nil {
						return err
					}
					id, _ = market["company_id"].(string)
					if id == "" {
						printInfo("You are not in a company. Try `promo company ranking`.")
						return nil
					}
				}
				out, err := c.Company(ctx, id)
				if err != nil {
					return err
				}
				if err := renderCompany(out); err != nil {
					return err
				}
				contribution, err := c.Contribution(ctx, id)
				if err != nil {
					return err
				}
				return renderContribution(contribution)
			})
		},
	})
	company.AddCommand(&cobra.Command{
		Use:   "requirements",
		Short: "Check whether you can found a company",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, apiBase, func(ctx context.Context, c *cl.Client, _ cl.Session) error {
				out, err := c.CompanyRequirements(ctx)
				if err != nil {
					return err
				}
				return renderRequirements(out)
			})
		},
	})
	return company
}

func newPostsCmd(apiBase *string) *cobra.Command {
	posts := &cobra.Command{
		Use:   "posts",
		Short: "IR release commands",
	}
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, apiBase, func(ctx context.Context, c *cl.Client, _ cl.Session) error {
				out, err := c.Posts(ctx, limit)
				if err != nil {
					return err
				}
				return renderPosts(out)
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "number of posts")
	posts.AddCommand(list)

	var sector, imageURL string
	create := &cobra.Command{
		Use:   "create [content]",
		Short: "Publish an IR release",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := argOrPrompt(args, 0, "Content", true)
			if err != nil {
				return err
			}
			return withClient(cmd, apiBase, func(ctx context.Context, c *cl.Client, _ cl.Session) error {
				out, err := c.CreatePost(ctx, content, sector, imageURL)
				if err != nil {
					return err
				}
				return renderPostCreated(out)
			})
		},
	}
	create.Flags().StringVar(&sector, "sector", "ビジネス", "sector: ビジネス, 自己研鑽, フィジカル or その他")
	create.Flags().StringVar(&imageURL, "image", "", "evidence image URL")
	posts.AddCommand(create)
	return posts
}

func newNotificationsCmd(apiBase *string) *cobra.Command {
	var markRead bool
	n := &cobra.Command{
		Use:   "notifications",
		Short: "Show your inbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, apiBase, func(ctx context.Context, c *cl.Client, _ cl.Session) error {
				out, err := c.Notifications(ctx)
				if err != nil {
					return err
				}
				if err := renderNotifications(out); err != nil {
					return err
				}
				if markRead {
					return c.MarkAllRead(ctx)
				}
				return nil
			})
		},
	}
	n.Flags().BoolVar(&markRead, "read", false, "mark everything as read afterwards")
	return n
}

func newCrashCmd(apiBase *string) *cobra.Command {
	crash := &cobra.Command{
		Use:   "crash",
		Short: "Market crash mode",
	}
	crash.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show market crash mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, apiBase, func(ctx context.Context, c *cl.Client, _ cl.Session) error {
				out, err := c.Crash(ctx)
				if err != nil {
					return err
				}
				return renderCrash(out)
			})
		},
	})
	crash.AddCommand(&cobra.Command{
		Use:   "on [multiplier]",
		Short: "Turn market crash mode on",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var multiplier *float64
			if len(args) > 0 {
				v, err := strconv.ParseFloat(strings.TrimSpace(args[0]), 64)
				if err != nil || v < 0 {
					return fmt.Errorf("invalid multiplier %q", args[0])
				}
				multiplier = &v
			}
			return withClient(cmd, apiBase, func(ctx context.Context, c *cl.Client, _ cl.Session) error {
				out, err := c.SetCrash(ctx, true, multiplier)
				if err != nil {
					return err
				}
				return renderCrash(out)
			})
		},
	})
	crash.AddCommand(&cobra.Command{
		Use:   "off",
		Short: "Turn market crash mode off",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, apiBase, func(ctx context.Context, c *cl.Client, _ cl.Session) error {
				out, err := c.SetCrash(ctx, false, nil)
				if err != nil {
					return err
				}
				return renderCrash(out)
			})
		},
	})
	return crash
}

func argOrPrompt(args []string, idx int, label string, required bool) (string, error) {
	if len(args) > idx {
		if v := strings.TrimSpace(args[idx]); v != "" || !required {
			return v, nil
		}
	}
	if !interactive() {
		if required {
			return "", fmt.Errorf("%s is required", strings.ToLower(label))
		}
		return "", nil
	}
	if required {
		return promptRequired(label)
	}
	return promptOptional(label)
}
