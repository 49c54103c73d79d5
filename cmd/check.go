package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/DrUlysses/Kristine-sub000/cache"
	"github.com/DrUlysses/Kristine-sub000/db"
	"github.com/DrUlysses/Kristine-sub000/repository"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Test the configured catalog database and cache",
	Long:  `Connect to the MySQL catalog and the Redis cache named in the configuration and run a small read/write round trip on each.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := cfg.Catalog
		if c.DBHost == "" && c.RedisHost == "" {
			fmt.Println("No database or cache configured; the catalog is kept in memory.")
			return nil
		}

		if c.DBHost != "" {
			fmt.Printf("MySQL: %s:%s/%s\n", c.DBHost, c.DBPort, c.DBName)
			gdb, err := db.ConnectGorm(c, &repository.SongRecord{})
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			songs, err := repository.NewGormSongRepository(gdb).ListSongs(ctx)
			cancel()
			db.Close(gdb)
			if err != nil {
				return fmt.Errorf("list songs: %w", err)
			}
			fmt.Printf("MySQL OK, %d songs in catalog\n", len(songs))
		}

		if c.RedisHost != "" {
			fmt.Printf("Redis: %s:%s, DB: %d\n", c.RedisHost, c.RedisPort, c.RedisDB)
			client, err := cache.Connect(c)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			key := cache.DefaultSongKey + ":check"
			if err := client.Set(ctx, key, "ok", 10*time.Second).Err(); err != nil {
				return fmt.Errorf("redis write: %w", err)
			}
			val, err := client.Get(ctx, key).Result()
			if err != nil || val != "ok" {
				return fmt.Errorf("redis read back %q: %v", val, err)
			}
			client.Del(ctx, key)
			fmt.Println("Redis OK")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
