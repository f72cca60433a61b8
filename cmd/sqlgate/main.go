package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyorg/sqlgate"
	"github.com/saltyorg/sqlgate/internal/logging"
	"github.com/saltyorg/sqlgate/mysql"
	"github.com/saltyorg/sqlgate/sqlite"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI flags
var (
	engine     string
	dbName     string
	host       string
	port       uint16
	user       string
	password   string
	unixSocket string
	logFile    string
	verbosity  int
	timeout    time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sqlgate",
		Short: "Sqlgate - run statements against a sqlgate backend",
		Long:  `Sqlgate is a maintenance CLI for databases accessed through the sqlgate layer: run one-off statements, queries and connectivity checks against a SQLite file or a MySQL server.`,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&engine, "engine", "e", "sqlite", "Backend engine: sqlite or mysql")
	pf.StringVarP(&dbName, "db", "d", "", "Database name, or file path for sqlite (or set DB_PATH env var)")
	pf.StringVar(&host, "host", "127.0.0.1", "Server host (mysql)")
	pf.Uint16Var(&port, "port", 3306, "Server port (mysql)")
	pf.StringVarP(&user, "user", "u", "", "User name (mysql)")
	pf.StringVar(&password, "password", "", "Password (mysql, or set DB_PASSWORD env var)")
	pf.StringVar(&unixSocket, "socket", "", "Unix socket path (mysql, overrides host/port)")
	pf.StringVar(&logFile, "log-file", "", "Also log to this rotating file")
	pf.CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")
	pf.DurationVar(&timeout, "timeout", 30*time.Second, "Timeout for connecting and running the statement")

	rootCmd.AddCommand(
		execCommand(),
		queryCommand(),
		pingCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("sqlgate %s (commit: %s, built: %s)\n", version, commit, date)
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func execCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <statement>",
		Short: "Run a statement that returns no rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConn(func(ctx context.Context, conn *sqlgate.Conn) error {
				if err := conn.Exec(ctx, args[0]); err != nil {
					return err
				}
				if id := conn.LastInsertID(); id > 0 {
					log.Info().Uint64("last_insert_id", id).Msg("Statement executed")
				} else {
					log.Info().Msg("Statement executed")
				}
				return nil
			})
		},
	}
}

func queryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "query <statement>",
		Short: "Run a statement and print its rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConn(func(ctx context.Context, conn *sqlgate.Conn) error {
				res, err := conn.Query(ctx, args[0])
				if err != nil {
					return err
				}
				if res == nil {
					log.Info().Msg("Query returned no rows")
					return nil
				}
				defer res.Close()

				columns := res.Columns()
				fmt.Println(strings.Join(columns, "\t"))
				for {
					values := make([]string, len(columns))
					for i, col := range columns {
						values[i] = res.String(col)
					}
					fmt.Println(strings.Join(values, "\t"))
					if !res.Next() {
						break
					}
				}
				log.Info().Int("rows", res.RowCount()).Msg("Query complete")
				return nil
			})
		},
	}
}

func pingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check connectivity to the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConn(func(ctx context.Context, conn *sqlgate.Conn) error {
				log.Info().Str("engine", conn.Dialect().Engine.String()).Msg("Backend reachable")
				return nil
			})
		},
	}
}

// withConn validates the flags, opens a connection and runs fn against it.
func withConn(fn func(context.Context, *sqlgate.Conn) error) error {
	logging.Apply(verbosity, logFile)

	if dbName == "" {
		if envDB := os.Getenv("DB_PATH"); envDB != "" {
			dbName = envDB
		}
	}
	if password == "" {
		if envPass := os.Getenv("DB_PASSWORD"); envPass != "" {
			password = envPass
		}
	}
	if dbName == "" {
		return fmt.Errorf("--db flag or DB_PATH environment variable is required")
	}

	var drv sqlgate.Driver
	switch engine {
	case "sqlite":
		drv = sqlite.New()
	case "mysql":
		drv = mysql.New()
	default:
		return fmt.Errorf("unknown engine %q (expected sqlite or mysql)", engine)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn := sqlgate.Open(drv)
	if err := conn.Connect(ctx, sqlgate.Params{
		Host:       host,
		User:       user,
		Password:   password,
		Database:   dbName,
		Port:       port,
		UnixSocket: unixSocket,
	}); err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close connection")
		}
	}()

	return fn(ctx, conn)
}
