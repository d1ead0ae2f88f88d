// Command seed fills the configured data backend with demo data.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"nexora/internal/config"
	"nexora/internal/database"
	"nexora/internal/remote"
	"nexora/internal/repository"
	"nexora/internal/seed"
)

var (
	opts  = seed.DefaultOptions
	clean bool
)

var rootCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate the data backend with demo communities, posts, comments and likes",
	Long: `Populate the data backend with demo data.

With DATA_BACKEND=rest rows are written through the hosted rest API using the
anon key, so row-level security must allow anonymous inserts. With a direct
database backend the schema is migrated first and --clean empties it.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	flags := rootCmd.Flags()
	flags.IntVar(&opts.Communities, "communities", opts.Communities, "Number of communities to create")
	flags.IntVar(&opts.Posts, "posts", opts.Posts, "Number of posts to create")
	flags.IntVar(&opts.CommentsPerPost, "comments", opts.CommentsPerPost, "Maximum comments per post")
	flags.IntVar(&opts.LikesPerPost, "likes", opts.LikesPerPost, "Maximum likes per post")
	flags.IntVar(&opts.Users, "users", opts.Users, "Size of the synthetic author pool")
	flags.Int64Var(&opts.Seed, "seed", 0, "Random seed; 0 picks one")
	flags.BoolVar(&clean, "clean", false, "Delete existing rows first (direct database only)")
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	var repos repository.Set
	if cfg.DataBackend == config.BackendREST {
		if clean {
			return fmt.Errorf("--clean needs a direct database backend, DATA_BACKEND is %q", cfg.DataBackend)
		}
		client, err := remote.NewClient(remote.Options{
			BaseURL: cfg.SupabaseURL,
			APIKey:  cfg.SupabaseAnonKey,
			Timeout: cfg.RemoteTimeout(),
		})
		if err != nil {
			return err
		}
		repos = repository.NewRESTSet(client)
	} else {
		db, err := database.Connect(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = database.Close(db) }()

		if clean {
			if err := seed.Clean(db); err != nil {
				return err
			}
			log.Println("Existing rows removed")
		}
		repos = repository.NewGormSet(db)
	}

	sum, err := seed.NewSeeder(repos, opts.Seed).Run(cmd.Context(), opts)
	if err != nil {
		return err
	}

	log.Printf("Created %d communities, %d posts, %d comments, %d likes",
		sum.Communities, sum.Posts, sum.Comments, sum.Likes)
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
