package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nexcred/backoffice/internal/model"
)

var (
	credsFile  string
	credsOwner string
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Store partner credentials from a YAML file",
	Long: `Reads a YAML file keyed by provider and stores each credential set:

    v8:
      client_id: "..."
      client_secret: "..."
    facta:
      user: "..."
      password: "..."`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		return loadCredentialsFile(ctx, env, credsFile, credsOwner)
	},
}

// loadCredentialsFile parses a provider-keyed YAML file and upserts each
// credential set for the given owner.
func loadCredentialsFile(ctx context.Context, env *appEnv, path, ownerID string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrap(err, "ler arquivo de credenciais")
	}

	var byProvider map[string]map[string]string
	if err := yaml.Unmarshal(data, &byProvider); err != nil {
		return eris.Wrap(err, "interpretar arquivo de credenciais")
	}

	for tag, fields := range byProvider {
		provider, err := model.ParseProvider(tag)
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return eris.Errorf("credenciais %s vazias", provider)
		}
		if err := env.Store.PutCredentials(ctx, &model.PartnerCredentials{
			OwnerID:   ownerID,
			Provider:  provider,
			Fields:    fields,
			UpdatedAt: time.Now().UTC(),
		}); err != nil {
			return eris.Wrapf(err, "salvar credenciais %s", provider)
		}
		fmt.Printf("credenciais %s salvas para %s\n", provider, ownerID)
	}
	return nil
}

func init() {
	credentialsCmd.Flags().StringVar(&credsFile, "file", "", "YAML file with credentials per provider")
	credentialsCmd.Flags().StringVar(&credsOwner, "owner", "cli", "owner id the credentials belong to")
	credentialsCmd.MarkFlagRequired("file") //nolint:errcheck
	rootCmd.AddCommand(credentialsCmd)
}
