package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/spf13/cobra"
	"github.com/tendant/simple-upload/pkg/simpleupload/auth"
	"github.com/tendant/simple-upload/pkg/simpleupload/client"
	"github.com/tendant/simple-upload/pkg/simpleupload/config"
	"github.com/tendant/simple-upload/pkg/simpleupload/deployment"
	"github.com/tendant/simple-upload/pkg/simpleupload/storage/r2"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
)

// NewRootCommand creates the uploadctl command tree
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "uploadctl",
		Short:         "Upload files and check deployment settings for simple-upload",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newUploadCommand())
	rootCmd.AddCommand(newCheckConfigCommand())
	return rootCmd
}

type uploadOptions struct {
	server      string
	token       string
	cookie      string
	cookieName  string
	contentType string
	timeout     time.Duration
}

func newUploadCommand() *cobra.Command {
	opts := uploadOptions{}

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file through the upload-url endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := runUpload(cmd.Context(), opts, args[0])
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), red("upload failed: "+err.Error()))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.server, "server", "s", envOr("SIMPLEUPLOAD_SERVER", "http://localhost:8080"), "Upload server base URL")
	cmd.Flags().StringVarP(&opts.token, "token", "t", os.Getenv("SIMPLEUPLOAD_TOKEN"), "Session token sent as a bearer token")
	cmd.Flags().StringVar(&opts.cookie, "cookie", "", "Session cookie value")
	cmd.Flags().StringVar(&opts.cookieName, "cookie-name", envOr("SESSION_COOKIE_NAME", auth.DefaultCookieName), "Session cookie name, matching the server's SESSION_COOKIE_NAME")
	cmd.Flags().StringVar(&opts.contentType, "content-type", "", "Content type (detected from the file when empty)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Overall upload timeout")
	return cmd
}

func runUpload(ctx context.Context, opts uploadOptions, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	contentType := opts.contentType
	if contentType == "" {
		if contentType, err = detectContentType(f); err != nil {
			return "", err
		}
	}

	clientOpts := []client.Option{
		client.WithBaseURL(opts.server),
		client.WithHTTPClient(&http.Client{Timeout: opts.timeout}),
	}
	if opts.token != "" {
		clientOpts = append(clientOpts, client.WithHeader("Authorization", "Bearer "+opts.token))
	}
	if opts.cookie != "" {
		cookie := &http.Cookie{Name: opts.cookieName, Value: opts.cookie}
		clientOpts = append(clientOpts, client.WithHeader("Cookie", cookie.String()))
	}

	result, err := client.New(clientOpts...).Upload(ctx, client.File{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Body:        f,
	})
	if err != nil {
		return "", err
	}
	return result.URL, nil
}

// detectContentType guesses from the extension, then from the first 512
// bytes. f is rewound afterwards.
func detectContentType(f *os.File) (string, error) {
	if ct := mime.TypeByExtension(filepath.Ext(f.Name())); ct != "" {
		return ct, nil
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(head[:n]), nil
}

func newCheckConfigCommand() *cobra.Command {
	var checkBucket bool

	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate deployment settings from the environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			deploy, err := deployment.FromEnv()
			if err != nil {
				fmt.Fprintln(out, red("✗ deployment configuration"))
				fmt.Fprintln(out, err.Error())
				return err
			}
			fmt.Fprintln(out, green("✓ deployment configuration"))
			fmt.Fprintf(out, "  %s %s\n", bold("provider:"), deploy.DeploymentProvider)
			fmt.Fprintf(out, "  %s %s\n", bold("pack query type:"), deploy.PackQueryType)
			fmt.Fprintf(out, "  %s %s\n", bold("tune type:"), deploy.TuneType)
			fmt.Fprintf(out, "  %s %t\n", bold("stripe enabled:"), deploy.StripeEnabled())

			if !checkBucket {
				return nil
			}
			if err := runBucketCheck(cmd.Context()); err != nil {
				fmt.Fprintln(out, red("✗ storage bucket: "+err.Error()))
				return err
			}
			fmt.Fprintln(out, green("✓ storage bucket"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkBucket, "check-bucket", false, "Also check the R2 bucket is reachable with the configured credentials")
	return cmd
}

func runBucketCheck(ctx context.Context) error {
	var settings config.R2Config
	if err := cleanenv.ReadEnv(&settings); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	backend, err := r2.New(settings.Backend())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return backend.CheckBucket(ctx)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
