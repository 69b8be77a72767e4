package config

import (
	"flag"
	"os"
	"time"

	"github.com/smorozov/vaultcore/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-m int      per-user storage cap, megabytes (0 = unlimited)
//	-i int      inline file payload limit, kilobytes (0 = always inline)
//	-l string   public share link base URL
//	-u string   S3 access key
//	-p string   S3 access secret
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration and size flags are accepted as integers and converted to the
//     Config's native units.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-t", "-m", "-i", "-l", "-u", "-p", "-b", "-g", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	maxStorageMB := fs.Int64("m", config.MaxUserStorageBytes>>20, "max_user_storage (in megabytes, 0 = unlimited)")
	inlineLimitKB := fs.Int64("i", config.InlineFileLimitBytes>>10, "inline_file_limit (in kilobytes, 0 = always inline)")

	fs.StringVar(&config.ShareBaseURL, "l", config.ShareBaseURL, "share link base URL")
	fs.StringVar(&config.S3AccessKey, "u", config.S3AccessKey, "S3 access key")
	fs.StringVar(&config.S3AccessSecret, "p", config.S3AccessSecret, "S3 access secret")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.MaxUserStorageBytes = *maxStorageMB << 20
	config.InlineFileLimitBytes = *inlineLimitKB << 10
}
