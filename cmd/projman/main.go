package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kedhead/project-manager-sub000/internal/cli"
	internal_http "github.com/kedhead/project-manager-sub000/internal/http"
	"github.com/kedhead/project-manager-sub000/internal/log"
	internal_storage "github.com/kedhead/project-manager-sub000/internal/storage"
)

var rootCmd = &cobra.Command{Use: "projman"}

// connString resolves the --db flag, falling back to DB_* env vars
// (optionally loaded from .env).
func connString(cmd *cobra.Command) string {
	connStr, _ := cmd.Flags().GetString("db")
	if connStr != "" {
		return connStr
	}
	if err := godotenv.Load(); err != nil {
		log.GetLogger().Debugf("No .env file loaded: %v", err)
	}
	dbUsername := os.Getenv("DB_USERNAME")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbName := os.Getenv("DB_NAME")
	if dbUsername == "" || dbPassword == "" || dbHost == "" || dbPort == "" || dbName == "" {
		fmt.Println("Error: --db flag or complete DB_* env vars (DB_USERNAME, DB_PASSWORD, DB_HOST, DB_PORT, DB_NAME) required")
		os.Exit(1)
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		dbUsername, dbPassword, dbHost, dbPort, dbName)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API server",
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetString("port")
		store, err := internal_storage.InitStore(connString(cmd))
		if err != nil {
			log.GetLogger().Errorf("Failed to initialize store: %v", err)
			os.Exit(1)
		}
		defer store.Close()
		if err := internal_http.StartServer(port, store); err != nil {
			log.GetLogger().Errorf("Server exited: %v", err)
			os.Exit(1)
		}
	},
}

func main() {
	rootCmd.PersistentFlags().String("db", "", "Database connection string (optional if DB_* env vars are set)")
	rootCmd.PersistentFlags().Int64("actor", 0, "Acting user id for CLI mutations")
	serveCmd.Flags().String("port", "8080", "HTTP listen port")
	rootCmd.AddCommand(serveCmd)
	cli.SetupCLI(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
