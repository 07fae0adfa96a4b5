// Command s3kit is a small CLI over the client library, mainly for poking at
// local stores during development.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kerolabs/s3kit"
	s3errors "github.com/kerolabs/s3kit/errors"
)

type globalFlags struct {
	addr         string
	bucket       string
	region       string
	accessKey    string
	secretKey    string
	sessionToken string
	virtualHost  bool
	configFile   string
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := newRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "s3kit",
		Short:         "Interact with an S3-compatible object store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.addr, "addr", "", "store endpoint URL (e.g. http://localhost:9000)")
	pf.StringVar(&flags.bucket, "bucket", "", "bucket to operate on")
	pf.StringVar(&flags.region, "region", "", "signing region")
	pf.StringVar(&flags.accessKey, "access-key", "", "access key")
	pf.StringVar(&flags.secretKey, "secret-key", "", "secret key")
	pf.StringVar(&flags.sessionToken, "session-token", "", "optional session token")
	pf.BoolVar(&flags.virtualHost, "virtual-host", false, "address buckets as subdomains instead of path segments")
	pf.StringVar(&flags.configFile, "config", "", "YAML config file; flags override it")

	root.AddCommand(
		newLsCmd(flags),
		newCatCmd(flags),
		newRmCmd(flags),
		newWriteCmd(flags),
		newBucketCmd(flags),
	)
	return root
}

// newClient assembles a client from the config file (if any) and flags, with
// flags taking precedence.
func newClient(flags *globalFlags) (*s3kit.Client, error) {
	var opts []s3kit.Option
	if flags.configFile != "" {
		fileOpts, err := s3kit.LoadOptions(flags.configFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, fileOpts...)
	}
	if flags.addr != "" {
		opts = append(opts, s3kit.WithEndpoint(flags.addr))
	}
	if flags.region != "" {
		opts = append(opts, s3kit.WithRegion(flags.region))
	}
	if flags.accessKey != "" || flags.secretKey != "" {
		opts = append(opts, s3kit.WithCredentials(flags.accessKey, flags.secretKey))
	}
	if flags.sessionToken != "" {
		opts = append(opts, s3kit.WithSessionToken(flags.sessionToken))
	}
	if flags.virtualHost {
		opts = append(opts, s3kit.WithVirtualHostStyle(true))
	}
	return s3kit.New(opts...)
}

func openBucket(flags *globalFlags) (*s3kit.Bucket, error) {
	if flags.bucket == "" {
		return nil, fmt.Errorf("--bucket is required")
	}
	client, err := newClient(flags)
	if err != nil {
		return nil, err
	}
	return client.Bucket(flags.bucket)
}

func newLsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ls [prefix]",
		Short: "List objects under a prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, err := openBucket(flags)
			if err != nil {
				return err
			}
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}

			it := bucket.ListObjects(prefix)
			for it.Next(cmd.Context()) {
				obj := it.Object()
				fmt.Fprintf(cmd.OutOrStdout(), "%12d  %s  %s\n",
					obj.Size, obj.LastModified.Format("2006-01-02 15:04:05"), obj.Key)
			}
			return it.Err()
		},
	}
}

func newCatCmd(flags *globalFlags) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "cat <key>",
		Short: "Print an object to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, err := openBucket(flags)
			if err != nil {
				return err
			}
			if raw {
				_, err := bucket.GetObjectToWriter(cmd.Context(), args[0], cmd.OutOrStdout())
				return err
			}
			text, err := bucket.GetObjectString(cmd.Context(), args[0])
			if err != nil {
				if s3errors.IsUserError(err) {
					return fmt.Errorf("%w (use --raw for binary objects)", err)
				}
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "write raw bytes without UTF-8 validation")
	return cmd
}

func newRmCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key>...",
		Short: "Delete objects",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, err := openBucket(flags)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				return bucket.DeleteObject(cmd.Context(), args[0])
			}

			result, err := bucket.DeleteObjects(cmd.Context(), args)
			if err != nil {
				return err
			}
			for _, de := range result.Errors {
				slog.Error("delete failed", "key", de.Key, "code", de.Code, "message", de.Message)
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d of %d keys failed to delete", len(result.Errors), len(args))
			}
			return nil
		},
	}
}

func newWriteCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "write <key> [content]",
		Short: "Write an object from an argument or stdin",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, err := openBucket(flags)
			if err != nil {
				return err
			}
			if len(args) == 2 {
				return bucket.PutObject(cmd.Context(), args[0], []byte(args[1]))
			}
			// Stdin has no known size; the upload streams in chunks.
			return bucket.Upload(cmd.Context(), args[0], cmd.InOrStdin(), -1)
		},
	}
}

func newBucketCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bucket",
		Short: "Bucket lifecycle operations",
	}
	cmd.AddCommand(newBucketCreateCmd(flags), newBucketDeleteCmd(flags))
	return cmd
}

func newBucketCreateCmd(flags *globalFlags) *cobra.Command {
	var ignoreExisting bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create the bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, err := openBucket(flags)
			if err != nil {
				return err
			}
			err = bucket.Create(cmd.Context())
			if err != nil && ignoreExisting && s3errors.IsBucketAlreadyExists(err) {
				slog.Info("bucket already exists", "bucket", bucket.Name())
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&ignoreExisting, "ignore-existing", false, "succeed if the bucket already exists")
	return cmd
}

func newBucketDeleteCmd(flags *globalFlags) *cobra.Command {
	var ignoreMissing bool

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, err := openBucket(flags)
			if err != nil {
				return err
			}
			err = bucket.Delete(cmd.Context())
			if err != nil && ignoreMissing && s3errors.IsNoSuchBucket(err) {
				slog.Info("bucket does not exist", "bucket", bucket.Name())
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&ignoreMissing, "ignore-missing", false, "succeed if the bucket does not exist")
	return cmd
}
