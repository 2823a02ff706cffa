package cmd

import (
	"os"

	"github.com/99designs/keyring"
	"github.com/creativeprojects/courier/account"
	"github.com/creativeprojects/courier/cfg"
	"github.com/creativeprojects/courier/credential"
	"github.com/creativeprojects/courier/lib"
	"github.com/creativeprojects/courier/oauth"
	"github.com/creativeprojects/courier/term"
)

type GlobalFlags struct {
	configFile string
	quiet      bool
	verbose    bool
	logLevel   string
	envFile    string
}

var (
	global GlobalFlags
	config *cfg.Config
)

// backendLevel is the logrus level given to the backends: they only talk in debug mode
func backendLevel() string {
	if global.verbose {
		return "debug"
	}
	if global.logLevel != "" {
		return global.logLevel
	}
	if config != nil && config.LogLevel != "" {
		return config.LogLevel
	}
	return "warn"
}

func newVault(settings *cfg.Vault) credential.Vault {
	if settings == nil {
		return nil
	}
	switch settings.Type {
	case cfg.VaultFile:
		return credential.NewBoltVault(settings.Path, credential.EnvPassphrase(settings.PassphraseEnv))
	case cfg.VaultKeyring:
		options := credential.KeyringOptions{
			Service:  settings.Service,
			Backends: settings.Backends,
			FileDir:  settings.Path,
		}
		if settings.PassphraseEnv != "" {
			options.Passphrase = keyring.PromptFunc(func(string) (string, error) {
				return os.Getenv(settings.PassphraseEnv), nil
			})
		}
		return credential.NewKeyringVault(options)
	}
	return nil
}

// newManager loads the configuration file and prepares the façade over every account
func newManager() (*account.Manager, error) {
	var err error
	if config == nil {
		config, err = cfg.LoadFromFile(global.configFile)
		if err != nil {
			return nil, err
		}
	}
	level := backendLevel()
	logger := lib.NewLogger("courier", level)
	store := credential.NewStore(newVault(config.Vault), logger)
	authorizer := oauth.NewLocalServerAuthorizer("", func(url string) error {
		term.Warnf("Open this address in your browser to authorize the access:\n%s", url)
		return nil
	})
	return account.NewManager(config, account.Options{
		Store: store,
		OAuth: oauth.NewManager(store, oauth.Options{
			Authorizer: authorizer,
			Logger:     lib.NewLogger("oauth", level),
		}),
		Prompt: credential.NewPromptSource(),
		Logger: logger,
		BackendLogger: func(kind lib.BackendKind) lib.Logger {
			return lib.NewLogger(string(kind), level)
		},
	}), nil
}

// withManager runs the command with a manager closed at the end
func withManager(run func(manager *account.Manager) error) error {
	manager, err := newManager()
	if err != nil {
		return err
	}
	defer func() {
		if err := manager.Close(); err != nil {
			term.Warnf("closing backends: %s", err)
		}
	}()
	return run(manager)
}
