package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ranierimazili/o2b2-fido-client/agent"
	"github.com/ranierimazili/o2b2-fido-client/ceremony"
	"github.com/ranierimazili/o2b2-fido-client/flow"
	"github.com/ranierimazili/o2b2-fido-client/internal/config"
	"github.com/ranierimazili/o2b2-fido-client/oauthmodel"
	"github.com/ranierimazili/o2b2-fido-client/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [flow-id]",
	Short: "Bind a device and authorise one payment consent",
	Long: `Run registers a client, binds a virtual authenticator as the user's device and
authorises a payment consent with it. The flow id defaults to a new ULID.

Example:
  flowctl run --open-browser --platform BROWSER`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := agent.NewFlowID()
		if len(args) == 1 {
			id = args[0]
		}

		platform, _ := cmd.Flags().GetString("platform")
		openBrowser, _ := cmd.Flags().GetBool("open-browser")
		interval, _ := cmd.Flags().GetDuration("poll-interval")
		attempts, _ := cmd.Flags().GetUint("max-attempts")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		origin, _ := cmd.Flags().GetString("origin")

		p := oauthmodel.Platform(strings.ToUpper(platform))
		if !p.Valid() {
			return fmt.Errorf("unknown platform %q", platform)
		}
		opener := agent.PrintRedirect
		if openBrowser {
			opener = agent.OpenBrowser
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		driver := agent.New(ceremony.NewCoordinator(ceremony.NewVirtualAuthenticator(origin)), agent.Options{
			BaseURL:      baseURL,
			Platform:     p,
			PollInterval: interval,
			MaxAttempts:  attempts,
			MaxElapsed:   timeout,
			Opener:       opener,
			Report:       report,
		})

		log.Info().Str("flow", id).Str("server", baseURL).Msg("starting flow")
		consentID, err := driver.Run(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), consentID)
		return nil
	},
}

var callbackCmd = &cobra.Command{
	Use:   "callback <flow-id> <code>",
	Short: "Deliver an authorization code to a waiting flow",
	Long: `Callback posts an authorization response to the orchestrator, for harnesses
where the authorization server cannot reach its redirect URI.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		idToken, _ := cmd.Flags().GetString("id-token")
		body, err := json.Marshal(oauthmodel.CallbackPayload{State: args[0], Code: args[1], IDToken: idToken})
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, strings.TrimRight(baseURL, "/")+server.RouteCallback, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := (&http.Client{Timeout: 30 * time.Second}).Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("callback answered %s", resp.Status)
		}
		log.Info().Str("flow", args[0]).Msg("authorization code delivered")
		return nil
	},
}

var newIDCmd = &cobra.Command{
	Use:   "new-id",
	Short: "Print a new flow id",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), agent.NewFlowID())
	},
}

func init() {
	c := config.New()
	runCmd.Flags().String("platform", string(oauthmodel.PlatformBrowser), "platform reported to the bank (ANDROID, IOS, BROWSER)")
	runCmd.Flags().Bool("open-browser", false, "open the authorization URL in the system browser")
	runCmd.Flags().Duration("poll-interval", c.GetCallbackRetryInterval(), "delay between polls for the authorization code")
	runCmd.Flags().Uint("max-attempts", agent.DefaultMaxAttempts, "polls before giving up on the authorization code")
	runCmd.Flags().Duration("timeout", agent.DefaultMaxElapsed, "time to wait for the authorization code")
	runCmd.Flags().String("origin", "https://localhost", "origin the virtual authenticator reports in client data")

	callbackCmd.Flags().String("id-token", "", "id_token returned with the code")
}

func report(step flow.Step, results []oauthmodel.StepResult) {
	for _, r := range results {
		event := log.Info()
		if !r.Success {
			event = log.Warn().Str("details", r.Details)
		}
		if r.Redirect != "" {
			event = event.Str("redirect", r.Redirect)
		}
		event.Str("step", string(step)).Msg(r.Message)
	}
}
