package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iurnickita/gascontrol/internal/client"
	"github.com/iurnickita/gascontrol/internal/token"
)

const (
	envServer = "GASCONTROL_SERVER"
	envToken  = "GASCONTROL_TOKEN"
)

func init() {
	rootCmd.AddCommand(fiadosCmd)
	fiadosCmd.AddCommand(fiadosListCmd)
	fiadosCmd.AddCommand(fiadosPayCmd)
	rootCmd.AddCommand(tokenCmd)

	fiadosCmd.PersistentFlags().StringP("server", "s", "http://localhost:5000", "Server base URL (or "+envServer+")")
	fiadosCmd.PersistentFlags().StringP("token", "t", "", "Bearer token (or "+envToken+")")
	tokenCmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
}

var fiadosCmd = &cobra.Command{
	Use:   "fiados",
	Short: "Inspect and settle customer credit on a running server",
}

var fiadosListCmd = &cobra.Command{
	Use:   "list",
	Short: "List customers with outstanding credit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		debts, err := c.ListDebtors(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCLIENTE\tDEUDA\tACTUALIZADO")
		for _, debt := range debts {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				debt.ID, debt.Customer, debt.TotalOwed.StringFixed(2), debt.LastUpdatedAt.Local().Format(time.DateTime))
		}
		return w.Flush()
	},
}

var fiadosPayCmd = &cobra.Command{
	Use:   "pay DEBT_ID AMOUNT",
	Short: "Register a payment against a debt",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("amount %q: %w", args[1], err)
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		answer, err := c.PayDebt(cmd.Context(), args[0], amount)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch {
		case answer.Settled && answer.Overpaid.IsPositive():
			fmt.Fprintf(out, "Deuda liquidada. Excedente: %s\n", answer.Overpaid.StringFixed(2))
		case answer.Settled:
			fmt.Fprintln(out, "Deuda liquidada.")
		case answer.Debt != nil:
			fmt.Fprintf(out, "Pago registrado. Saldo: %s\n", answer.Debt.TotalOwed.StringFixed(2))
		default:
			fmt.Fprintln(out, answer.Message)
		}
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token OPERATOR_ID",
	Short: "Sign a development token with the configured auth secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Auth.Secret == "" {
			return errors.New("auth secret is not set")
		}
		ttl, _ := cmd.Flags().GetDuration("ttl")
		tokenString, err := token.BuildJWTString(cfg.Auth.Secret, cfg.Auth.Issuer, args[0], ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tokenString)
		return nil
	},
}

func newClient(cmd *cobra.Command) (client.Client, error) {
	server, _ := cmd.Flags().GetString("server")
	if v := os.Getenv(envServer); v != "" && !cmd.Flags().Changed("server") {
		server = v
	}
	tokenString, _ := cmd.Flags().GetString("token")
	if tokenString == "" {
		tokenString = os.Getenv(envToken)
	}
	if tokenString == "" {
		return nil, errors.New("no token: pass --token or set " + envToken)
	}
	return client.NewClient(server, tokenString), nil
}
