package main

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nonceguard/digestauthd/core/digest"
	"github.com/nonceguard/digestauthd/core/hashengine"
	"github.com/nonceguard/digestauthd/internal/config"
	"github.com/nonceguard/digestauthd/internal/credstore"
)

func newGenUserCommand() *cobra.Command {
	var (
		configPath string
		username   string
		realm      string
		algoFlag   string
		disabled   bool
	)

	cmd := &cobra.Command{
		Use:   "genuser",
		Short: "Add or update a user's H(A1) in the credential store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenUser(configPath, username, realm, algoFlag, disabled)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "digestauthd.yaml", "path to the configuration file")
	cmd.Flags().StringVarP(&username, "username", "u", "", "username to add (required)")
	cmd.Flags().StringVarP(&realm, "realm", "r", "", "realm to scope the user to (defaults to the configured realm)")
	cmd.Flags().StringVarP(&algoFlag, "algorithm", "a", "", "algorithm to store H(A1) for (defaults to the configured algorithm)")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "create the user in a disabled state")
	cmd.MarkFlagRequired("username")
	return cmd
}

func runGenUser(configPath, username, realmFlag, algoFlag string, disabled bool) error {
	mgr := config.NewManager()
	cfg, err := mgr.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	realm := realmFlag
	if realm == "" {
		realm = cfg.Digest.Realm
	}
	algoToken := algoFlag
	if algoToken == "" {
		algoToken = cfg.Digest.Algorithm
	}
	algo, ok := hashengine.ParseAlgorithm(algoToken)
	if !ok {
		return fmt.Errorf("unsupported digest algorithm %q", algoToken)
	}

	password, err := readPassword()
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	store, err := openStore(cfg.Credentials)
	if err != nil {
		return fmt.Errorf("opening credential store: %w", err)
	}
	defer store.Close()

	ha1Hex := digest.HA1FromPassword(algo, username, realm, password)
	ha1, err := hex.DecodeString(ha1Hex)
	if err != nil {
		return fmt.Errorf("decoding computed H(A1): %w", err)
	}

	user := credstore.User{
		Username:  username,
		Realm:     realm,
		Algorithm: algo.String(),
		HA1:       ha1,
		Enabled:   !disabled,
	}
	if err := store.Put(context.Background(), user); err != nil {
		return fmt.Errorf("storing user: %w", err)
	}

	fmt.Printf("stored %s@%s (algorithm=%s)\n", username, realm, algo.String())
	return nil
}

func readPassword() (string, error) {
	fmt.Print("Password: ")
	b, err := term.ReadPassword(int(stdinFD()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
