package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teemow/gmailmcp/internal/config"
	"github.com/teemow/gmailmcp/internal/google"
	"github.com/teemow/gmailmcp/internal/logging"
)

func newAuthCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize Gmail access and store the credential",
		Long: `Run the authorization flow once and store the resulting credential.

A stored credential that is still valid is reused and an expired one is
refreshed. Only when neither works is the browser consent flow started.
With --check the consent flow is never started and the command fails
instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runAuth(cmd.Context(), cfg, check, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Only verify or refresh the stored credential, never prompt")
	addAuthFlags(cmd.Flags())

	return cmd
}

func runAuth(ctx context.Context, cfg *config.Config, check bool, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	logger = logging.WithOperation(logger, "auth")

	var flow *google.Flow
	if check {
		secrets := google.NewClientSecrets(cfg.ClientSecretPath)
		flow = google.NewFlow(google.NewFileStore(cfg.TokenPath), google.NewOAuthRefresher(secrets), nil,
			google.WithLogger(logger))
	} else {
		flow = newFlow(cfg, logger, nil)
	}

	cred, err := flow.Credential(ctx)
	if err != nil {
		return fmt.Errorf("%w (state: %s)", err, flow.State())
	}

	_, err = fmt.Fprintln(out, describeCredential(cfg.TokenPath, cred))
	return err
}

// describeCredential renders a one-line summary of a credential without
// any token material.
func describeCredential(path string, cred *google.Credential) string {
	expiry := "no expiry"
	if !cred.Expiry.IsZero() {
		expiry = "expires " + cred.Expiry.Local().Format("2006-01-02 15:04:05 MST")
	}
	return fmt.Sprintf("Authenticated (%s). Credential stored at %s. Scopes: %s",
		expiry, path, strings.Join(cred.Scopes, ", "))
}
