package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"studyline/internal/ai"
	"studyline/internal/app"
	"studyline/internal/config"
	"studyline/internal/db"
	"studyline/internal/domain"
	"studyline/internal/engine"
	"studyline/internal/migrate"
	"studyline/internal/repo"
	"studyline/internal/report"
	"studyline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sl",
	Short: "Studyline CLI",
	Long: `Studyline tracks exam preparation against an edital (official syllabus).
Core concepts:
- Workspace: your .studyline directory with the database; configs are stored in the DB and imported explicitly.
- Journey: one preparation for one exam; owns the edital and all study data.
- Edital: disciplines and topics, imported structured or extracted from raw text by AI.
- Sessions: study blocks per topic (pdf, video, law, questions, summary, theory, review); a timed session schedules spaced reviews.
- Reviews: spaced-repetition obligations, shown as overdue / due today / upcoming.
- Stats: accuracy per discipline and topic, XP, level, and study streak.
- Groups: shared leaderboards ranked by XP.
- Event log: diary of changes, view with 'sl log tail'.`,
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
	viper.SetEnvPrefix("STUDYLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("journey", "", "journey id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("journey", rootCmd.PersistentFlags().Lookup("journey"))
}

func registerCommands() {
	rootCmd.AddCommand(journeyCmd())
	rootCmd.AddCommand(editalCmd())
	rootCmd.AddCommand(studyCmd())
	rootCmd.AddCommand(questionsCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(quizCmd())
	rootCmd.AddCommand(topicCmd())
	rootCmd.AddCommand(groupCmd())
	rootCmd.AddCommand(keysCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func journeyCmd() *cobra.Command {
	j := &cobra.Command{Use: "journey", Short: "Manage journeys"}
	j.AddCommand(journeyListCmd())
	j.AddCommand(journeyCreateCmd())
	j.AddCommand(journeyShowCmd())
	j.AddCommand(journeyArchiveCmd())
	j.AddCommand(journeyDeleteCmd())
	j.AddCommand(journeyUseCmd())
	j.AddCommand(journeyConfigCmd())
	return j
}

func journeyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List journeys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListJourneys(ctx, "")
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func journeyCreateCmd() *cobra.Command {
	var name, exam string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create journey",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn, nil)
			j, err := e.CreateJourney(cmd.Context(), engine.JourneyCreateOptions{
				Name:    name,
				Exam:    exam,
				ActorID: viper.GetString("actor-id"),
			})
			if err != nil {
				return err
			}
			return printJSONOrTable(j)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "journey name")
	cmd.Flags().StringVar(&exam, "exam", "", "exam name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func journeyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active journey",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.Repo.GetJourney(ctx, e.Config.Journey.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
}

func journeyArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Archive the active journey",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.ArchiveJourney(ctx, e.Config.Journey.ID, viper.GetString("actor-id"))
			})
		},
	}
}

func journeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a journey and all its study data (owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteJourney(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
}

func journeyUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <id>",
		Short: "Set current journey for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			journeyID := strings.TrimSpace(args[0])
			if journeyID == "" {
				return fmt.Errorf("journey id is required")
			}
			workspace := viper.GetString("workspace")
			if err := setEnvValue(filepath.Join(workspace, ".env"), "STUDYLINE_JOURNEY", journeyID); err != nil {
				return err
			}
			fmt.Printf("Set STUDYLINE_JOURNEY=%s in %s/.env\n", journeyID, workspace)
			return nil
		},
	}
}

func journeyConfigCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage journey config"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show journey config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	})
	var filePath string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import journey config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg *config.Config
			var err error
			if filePath != "" {
				cfg, err = config.FromFile(filePath)
			} else {
				cfg, err = config.Load(viper.GetString("workspace"))
			}
			if err != nil {
				return err
			}
			journeyID := cfg.Journey.ID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if journeyID == "" {
					journeyID = e.Config.Journey.ID
				}
				if err := e.Repo.UpsertJourneyConfig(ctx, journeyID, cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	importCmd.Flags().StringVar(&filePath, "file", "", "path to YAML config (default: studyline.yml in the workspace)")
	cfg.AddCommand(importCmd)
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default studyline.yml to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			journeyID := viper.GetString("journey")
			if journeyID == "" {
				journeyID = "my-journey"
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			return os.WriteFile(path, []byte(config.GenerateDefault(journeyID)), 0o644)
		},
	})
	return cfg
}

func editalCmd() *cobra.Command {
	ed := &cobra.Command{
		Use:   "edital",
		Short: "Manage the edital (syllabus)",
		Long:  "The edital is the official syllabus: disciplines with their topics, in order. Study data references topics by id and survives edital edits.",
	}
	ed.AddCommand(editalShowCmd())
	ed.AddCommand(editalImportCmd())
	ed.AddCommand(editalAddDisciplineCmd())
	ed.AddCommand(editalAddTopicCmd())
	ed.AddCommand(editalRenameDisciplineCmd())
	ed.AddCommand(editalRenameTopicCmd())
	ed.AddCommand(editalRemoveTopicCmd())
	ed.AddCommand(editalRemoveDisciplineCmd())
	return ed
}

func editalShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show edital with topic status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				disciplines, err := e.Repo.ListEdital(ctx, e.Config.Journey.ID)
				if err != nil {
					return err
				}
				statuses, err := e.Repo.ListTopicStatus(ctx, e.Config.Journey.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"disciplines": disciplines, "topic_status": statuses})
				}
				for _, d := range disciplines {
					fmt.Printf("%s\n", d.Name)
					for _, t := range d.Topics {
						st, ok := statuses[t.ID]
						if !ok {
							st = domain.TopicStatus{Pending: true}
						}
						fmt.Printf("  %s %s (%s)\n", statusGlyph(st), t.Name, t.ID)
					}
				}
				return nil
			})
		},
	}
}

// statusGlyph summarizes a topic status for terminal output.
func statusGlyph(st domain.TopicStatus) string {
	if st.Pending {
		return "[ ]"
	}
	var marks []string
	if st.PDF {
		marks = append(marks, "pdf")
	}
	if st.Video {
		marks = append(marks, "video")
	}
	if st.Law {
		marks = append(marks, "law")
	}
	if st.Questions {
		marks = append(marks, "questions")
	}
	if st.Summary {
		marks = append(marks, "summary")
	}
	if len(marks) == 0 {
		return "[~]"
	}
	return "[" + strings.Join(marks, ",") + "]"
}

func editalImportCmd() *cobra.Command {
	var filePath, textPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import edital from JSON, or extract it from raw text with AI",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (filePath == "") == (textPath == "") {
				return fmt.Errorf("exactly one of --file or --text is required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID := viper.GetString("actor-id")
				if textPath != "" {
					text, err := os.ReadFile(textPath)
					if err != nil {
						return err
					}
					disciplines, err := e.ImportEditalText(ctx, e.Config.Journey.ID, string(text), actorID)
					if err != nil {
						return err
					}
					return printJSONOrTable(disciplines)
				}
				data, err := os.ReadFile(filePath)
				if err != nil {
					return err
				}
				var input []engine.EditalDisciplineInput
				if err := json.Unmarshal(data, &input); err != nil {
					return fmt.Errorf("invalid edital json: %w", err)
				}
				disciplines, err := e.ImportEdital(ctx, engine.EditalImportOptions{
					JourneyID:   e.Config.Journey.ID,
					Disciplines: input,
					ActorID:     actorID,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(disciplines)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", `structured edital JSON: [{"name":..., "topics":[...]}]`)
	cmd.Flags().StringVar(&textPath, "text", "", "raw syllabus text file, structured by AI")
	return cmd
}

func editalAddDisciplineCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "add-discipline",
		Short: "Add a discipline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.AddDiscipline(ctx, e.Config.Journey.ID, name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "discipline name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func editalAddTopicCmd() *cobra.Command {
	var disciplineID, name string
	cmd := &cobra.Command{
		Use:   "add-topic",
		Short: "Add a topic to a discipline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.AddTopic(ctx, disciplineID, name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&disciplineID, "discipline", "", "discipline id")
	cmd.Flags().StringVar(&name, "name", "", "topic name")
	_ = cmd.MarkFlagRequired("discipline")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func editalRenameDisciplineCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "rename-discipline <id>",
		Short: "Rename a discipline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.RenameDiscipline(ctx, args[0], name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new discipline name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func editalRenameTopicCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "rename-topic <id>",
		Short: "Rename a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.RenameTopic(ctx, args[0], name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new topic name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func editalRemoveTopicCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm-topic <id>",
		Short: "Remove a topic (study data stays behind)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteTopic(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
}

func editalRemoveDisciplineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm-discipline <id>",
		Short: "Remove a discipline and its topics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteDiscipline(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
}

func studyCmd() *cobra.Command {
	st := &cobra.Command{Use: "study", Short: "Record study sessions"}
	var topicID, sessionType, date string
	var minutes, seconds int
	record := &cobra.Command{
		Use:   "record",
		Short: "Record a study session",
		Long:  "A timed session (duration > 0) schedules spaced reviews per the journey's review offsets. Types pdf, video, law, questions, and summary also complete the matching modality on the topic.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				duration := minutes*60 + seconds
				s, revisions, err := e.RecordStudySession(ctx, engine.StudySessionOptions{
					JourneyID:       e.Config.Journey.ID,
					TopicID:         topicID,
					DurationSeconds: duration,
					Date:            date,
					Type:            sessionType,
					ActorID:         viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"session": s, "revisions": revisions})
			})
		},
	}
	record.Flags().StringVar(&topicID, "topic", "", "topic id")
	record.Flags().StringVar(&sessionType, "type", "theory", "session type (theory, pdf, video, questions, law, summary, review)")
	record.Flags().IntVar(&minutes, "minutes", 0, "duration minutes")
	record.Flags().IntVar(&seconds, "seconds", 0, "extra duration seconds")
	record.Flags().StringVar(&date, "date", "", "session date (RFC3339 or YYYY-MM-DD, default now)")
	_ = record.MarkFlagRequired("topic")
	st.AddCommand(record)
	return st
}

func questionsCmd() *cobra.Command {
	q := &cobra.Command{Use: "questions", Short: "Log question batches"}
	var topicID, date string
	var total, correct int
	logBatch := &cobra.Command{
		Use:   "log",
		Short: "Log a question batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.LogQuestions(ctx, engine.QuestionLogOptions{
					JourneyID: e.Config.Journey.ID,
					TopicID:   topicID,
					Total:     total,
					Correct:   correct,
					Date:      date,
					ActorID:   viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	logBatch.Flags().StringVar(&topicID, "topic", "", "topic id")
	logBatch.Flags().IntVar(&total, "total", 0, "questions attempted")
	logBatch.Flags().IntVar(&correct, "correct", 0, "questions correct")
	logBatch.Flags().StringVar(&date, "date", "", "date (RFC3339, default now)")
	_ = logBatch.MarkFlagRequired("topic")
	_ = logBatch.MarkFlagRequired("total")
	q.AddCommand(logBatch)
	return q
}

func reviewCmd() *cobra.Command {
	rv := &cobra.Command{Use: "review", Short: "Spaced-repetition reviews"}
	rv.AddCommand(&cobra.Command{
		Use:   "agenda",
		Short: "Show overdue, due today, and upcoming reviews",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				agenda, err := e.Agenda(ctx, e.Config.Journey.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(agenda)
				}
				printAgendaSection("Overdue", agenda.Overdue)
				printAgendaSection("Due today", agenda.DueToday)
				printAgendaSection("Upcoming", agenda.Upcoming)
				return nil
			})
		},
	})
	rv.AddCommand(&cobra.Command{
		Use:   "done <revision_id>",
		Short: "Mark a review as completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rev, err := e.CompleteRevision(ctx, e.Config.Journey.ID, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(rev)
			})
		},
	})
	return rv
}

func printAgendaSection(title string, revisions []domain.Revision) {
	fmt.Printf("%s (%d):\n", title, len(revisions))
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Topic", "Due", "Label"})
	for _, rev := range revisions {
		t.AppendRow(table.Row{rev.ID, rev.TopicID, rev.DueDate, rev.Label})
	}
	t.Render()
}

func statsCmd() *cobra.Command {
	st := &cobra.Command{Use: "stats", Short: "Performance and progress"}
	st.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rep, err := e.Stats(ctx, e.Config.Journey.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				fmt.Printf("XP %d | level %d | streak %d days | accuracy %d%%\n",
					rep.Progress.XP, rep.Progress.Level, rep.Progress.StudyDayStreak, rep.Progress.OverallAccuracyPct)
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"Discipline", "Correct", "Total", "Accuracy %"})
				for _, d := range rep.ByDiscipline {
					t.AppendRow(table.Row{d.Name, d.Correct, d.Total, d.AccuracyPct})
				}
				t.Render()
				return nil
			})
		},
	})
	var out string
	export := &cobra.Command{
		Use:   "export",
		Short: "Export stats to an xlsx spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rep, err := e.Stats(ctx, e.Config.Journey.ID)
				if err != nil {
					return err
				}
				if err := report.WriteStatsXLSX(rep, out); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", out)
				return nil
			})
		},
	}
	export.Flags().StringVar(&out, "out", "studyline-stats.xlsx", "output path")
	st.AddCommand(export)
	return st
}

func quizCmd() *cobra.Command {
	var topicID string
	var count int
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Generate an AI quiz for a topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				result, err := e.GenerateQuiz(ctx, engine.QuizOptions{
					JourneyID: e.Config.Journey.ID,
					TopicID:   topicID,
					Count:     count,
					ActorID:   viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(result)
			})
		},
	}
	cmd.Flags().StringVar(&topicID, "topic", "", "topic id")
	cmd.Flags().IntVar(&count, "count", 0, "question count (default from config)")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

func topicCmd() *cobra.Command {
	tp := &cobra.Command{Use: "topic", Short: "Topic helpers"}
	var topicID string
	summary := &cobra.Command{
		Use:   "summary",
		Short: "AI study summary for a topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				text, err := e.SummarizeTopic(ctx, e.Config.Journey.ID, topicID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				fmt.Println(text)
				return nil
			})
		},
	}
	summary.Flags().StringVar(&topicID, "topic", "", "topic id")
	_ = summary.MarkFlagRequired("topic")
	tp.AddCommand(summary)
	return tp
}

func groupCmd() *cobra.Command {
	g := &cobra.Command{Use: "group", Short: "Study groups"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a group",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				grp, err := e.CreateGroup(ctx, name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(grp)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "group name")
	_ = create.MarkFlagRequired("name")
	g.AddCommand(create)

	g.AddCommand(&cobra.Command{
		Use:   "join <invite-code>",
		Short: "Join a group by invite code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				grp, err := e.JoinGroup(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(grp)
			})
		},
	})
	g.AddCommand(&cobra.Command{
		Use:   "leave <group-id>",
		Short: "Leave a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.LeaveGroup(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	})
	g.AddCommand(&cobra.Command{
		Use:   "rotate-invite <group-id>",
		Short: "Rotate the group's invite code (owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				grp, err := e.RotateInviteCode(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(grp)
			})
		},
	})
	g.AddCommand(&cobra.Command{
		Use:   "delete <group-id>",
		Short: "Delete a group (owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteGroup(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	})
	g.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List my groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListGroupsForActor(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})
	g.AddCommand(&cobra.Command{
		Use:   "leaderboard <group-id>",
		Short: "Show group leaderboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.Leaderboard(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"Rank", "Actor", "XP", "Level"})
				for _, entry := range entries {
					t.AppendRow(table.Row{entry.Rank, entry.ActorID, entry.XP, entry.Level})
				}
				t.Render()
				return nil
			})
		},
	})
	return g
}

func keysCmd() *cobra.Command {
	k := &cobra.Command{Use: "keys", Short: "API keys"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (the secret is shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				key, raw, err := r.CreateAPIKey(ctx, viper.GetString("actor-id"), name)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"id": key.ID, "name": key.Name, "key": raw})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key name")
	k.AddCommand(create)
	k.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	})
	k.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	})
	return k
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: sessions, reviews, edital edits, billing, and more.",
	}
	var n int
	var evtType, entityKind, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, e.Config.Journey.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter")
	tail.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	lg.AddCommand(tail)
	return lg
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveJourneyAndConfig(cmd.Context(), workspace, viper.GetString("journey"), viper.GetString("actor-id"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			e.AI = aiClientFromEnv()
			authCfg := server.AuthConfig{
				JWTSecret:     os.Getenv("STUDYLINE_JWT_SECRET"),
				GatewaySecret: os.Getenv("STUDYLINE_GATEWAY_SECRET"),
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("STUDYLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(e)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Studyline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
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

func aiClientFromEnv() engine.Collaborator {
	return ai.NewClient(os.Getenv("STUDYLINE_AI_BASE_URL"), os.Getenv("STUDYLINE_AI_KEY"))
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveJourneyAndConfig(ctx, workspace, viper.GetString("journey"), viper.GetString("actor-id"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	e.AI = aiClientFromEnv()
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
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

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
