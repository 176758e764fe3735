package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"followgraph/pkg/auth"
	"followgraph/pkg/ratelimit"
	"followgraph/pkg/ui"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	addFromINI  string
	useBearer   bool
	verifyNames []string
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage API credentials",
	Long: `Manage stored API credentials.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (FOLLOWGRAPH_CONSUMER_KEY and friends)

Credential INI files given with --credentials are used as they are and are
never copied into the store unless you run 'auth add --ini'.`,
}

var authAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Store a credential",
	Long: `Store API keys under a name. You will be prompted for the consumer key
and secret (or a bearer token with --bearer); input is hidden.`,
	Example: `  # Interactive
  followgraph auth add research1

  # Import an INI credential file
  followgraph auth add --ini keys/research1.ini`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuthAdd,
}

var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored credentials",
	Long:  `List stored credentials with secrets masked.`,
	RunE:  runAuthList,
}

var authRemoveCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Remove a stored credential",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthRemove,
}

var authVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check every configured credential against the API",
	Long: `Call the rate limit status endpoint with each credential and print the
remaining quota of the endpoints a crawl uses.`,
	RunE: runAuthVerify,
}

var authExportCmd = &cobra.Command{
	Use:   "export NAME FILE",
	Short: "Write a stored credential to an INI file",
	Args:  cobra.ExactArgs(2),
	RunE:  runAuthExport,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authAddCmd, authListCmd, authRemoveCmd, authVerifyCmd, authExportCmd)

	authAddCmd.Flags().StringVar(&addFromINI, "ini", "", "import from an INI credential file")
	authAddCmd.Flags().BoolVar(&useBearer, "bearer", false, "prompt for a bearer token instead of consumer keys")
	authVerifyCmd.Flags().StringSliceVar(&verifyNames, "only", nil, "only verify these credential names")
}

func runAuthAdd(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	var cred *auth.Credential
	if addFromINI != "" {
		cred, err = auth.LoadINI(addFromINI)
		if err != nil {
			return err
		}
		if len(args) > 0 {
			cred.Name = args[0]
		}
	} else {
		cred, err = promptCredential(cmd, args)
		if err != nil {
			return err
		}
	}
	cred.LastModified = time.Now()

	if err := cred.Validate(); err != nil {
		return err
	}
	if err := manager.Store(cred); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	ui.PrintSuccess("Credential saved: " + cred.Name)
	return nil
}

func promptCredential(cmd *cobra.Command, args []string) (*auth.Credential, error) {
	reader := bufio.NewReader(os.Stdin)
	out := cmd.OutOrStdout()

	auth.ShowCredentialGuide(out)

	var name string
	if len(args) > 0 {
		name = args[0]
	} else {
		fmt.Fprint(out, "Credential name: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("failed to read name: %w", err)
		}
		name = strings.TrimSpace(input)
	}
	if name == "" {
		return nil, errors.New("credential name is required")
	}

	cred := &auth.Credential{Name: name, Source: "prompt"}
	fmt.Fprintln(out, "\nEnter your keys (they will be hidden as you type):")
	var err error
	if useBearer {
		fmt.Fprint(out, "Bearer token: ")
		if cred.BearerToken, err = readPassword(); err != nil {
			return nil, err
		}
		return cred, nil
	}

	fmt.Fprint(out, "API key: ")
	if cred.ConsumerKey, err = readPassword(); err != nil {
		return nil, err
	}
	fmt.Fprint(out, "API key secret: ")
	if cred.ConsumerSecret, err = readPassword(); err != nil {
		return nil, err
	}
	return cred, nil
}

func runAuthList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	creds, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}
	if len(creds) == 0 {
		ui.PrintInfo("No stored credentials", "use 'followgraph auth add' to add one")
		return nil
	}

	for i, c := range creds {
		s := auth.Sanitize(c)
		fmt.Printf("%d. %s\n", i+1, ui.Cyan(s.Name))
		if s.BearerToken != "" {
			fmt.Printf("   Bearer token: %s\n", s.BearerToken)
		}
		if s.ConsumerKey != "" {
			fmt.Printf("   API key: %s\n", s.ConsumerKey)
			fmt.Printf("   API secret: %s\n", s.ConsumerSecret)
		}
		if s.Source != "" {
			fmt.Printf("   Source: %s\n", s.Source)
		}
		if !s.LastModified.IsZero() {
			fmt.Printf("   Last modified: %s\n", s.LastModified.Format("2006-01-02 15:04:05"))
		}
	}
	return nil
}

func runAuthRemove(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	if err := manager.Delete(args[0]); err != nil {
		return fmt.Errorf("failed to remove credential: %w", err)
	}
	ui.PrintSuccess("Credential removed: " + args[0])
	return nil
}

func runAuthVerify(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := setup(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	creds, err := a.credentials()
	if err != nil {
		return err
	}
	if len(verifyNames) > 0 {
		keep := make(map[string]bool, len(verifyNames))
		for _, n := range verifyNames {
			keep[n] = true
		}
		filtered := creds[:0]
		for _, c := range creds {
			if keep[c.Name] {
				filtered = append(filtered, c)
			}
		}
		creds = filtered
		if len(creds) == 0 {
			return ratelimit.ErrNoCredentials
		}
	}

	sched := ratelimit.NewScheduler()
	defer sched.Stop()
	r, err := a.rotator(ctx, creds, sched)
	if err != nil {
		return err
	}

	failed := 0
	for _, v := range r.VerifyAll(ctx) {
		if v.Err != nil {
			failed++
			ui.PrintError(v.Name, v.Err.Error())
			continue
		}
		fmt.Printf("%s %s\n", ui.Green("✓"), v.Name)
		for _, s := range v.Statuses {
			fmt.Printf("   %-28s %4d/%-4d resets %s\n", s.Resource, s.Remaining, s.Limit, s.Reset.Format("15:04:05"))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d credentials failed verification", failed, len(creds))
	}
	return nil
}

func runAuthExport(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	cred, err := manager.Retrieve(args[0])
	if err != nil {
		return err
	}
	if err := auth.SaveINI(args[1], cred); err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("Credential %s written to %s", cred.Name, args[1]))
	return nil
}

// readPassword reads a secret from stdin without echoing
func readPassword() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
