package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"go-pos-hostswitch/internal/admin"
	"go-pos-hostswitch/internal/hostswitch"
	"go-pos-hostswitch/internal/payment"
	"go-pos-hostswitch/internal/scheduler"
)

var echoHost int

var echoCmd = &cobra.Command{
	Use:   "echo",
	Short: "Send a network-management echo to one host, or every host",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		targets := a.hosts.Definitions()
		if echoHost != 0 {
			def, ok := a.hosts.HostDefinition(echoHost)
			if !ok {
				return fmt.Errorf("unknown host index %d", echoHost)
			}
			targets = []hostswitch.HostDefinition{def}
		}
		return scheduler.NewEchoJob(a.runner, targets, &a.mu, a.log).Run()
	},
}

var saleFlags struct {
	host    int
	pan     string
	expiry  string
	amount  uint64
	tip     uint64
	cvv     string
	batch   uint32
}

var saleCmd = &cobra.Command{
	Use:   "sale",
	Short: "Authorize a keyed sale online and add it to the batch",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		host, err := a.resolveHost(saleFlags.host)
		if err != nil {
			return err
		}
		tx := &payment.Transaction{
			HostIndex:      host,
			PAN:            saleFlags.pan,
			ExpirationDate: saleFlags.expiry,
			Amount:         payment.AmountOf(saleFlags.amount),
			EntryMode:      payment.EntryManual,
			CVV:            saleFlags.cvv,
			BatchNumber:    saleFlags.batch,
		}
		if saleFlags.tip > 0 {
			tx.AdditionalAmount = payment.AmountOf(saleFlags.tip)
		}

		a.mu.Lock()
		err = a.runner.Sale(cmd.Context(), tx)
		a.mu.Unlock()

		fmt.Fprintf(cmd.OutOrStdout(), "invoice %06d stan %06d status %s response %q rrn %q auth %q\n",
			tx.InvoiceNumber, tx.STAN, tx.Status, tx.ResponseCode, tx.RRN, tx.AuthIDResponse)
		return err
	},
}

var settleFlags struct {
	host  int
	batch uint32
}

var settleCmd = &cobra.Command{
	Use:   "settle",
	Short: "Settle the open batch of a host",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		host, err := a.resolveHost(settleFlags.host)
		if err != nil {
			return err
		}
		a.mu.Lock()
		res, err := a.runner.Settle(cmd.Context(), host, settleFlags.batch)
		a.mu.Unlock()

		fmt.Fprintf(cmd.OutOrStdout(), "sales %d/%d refunds %d/%d response %q uploaded %d settled %d\n",
			res.Totals.Sales.Count, res.Totals.Sales.Total, res.Totals.Refunds.Count, res.Totals.Refunds.Total,
			res.ResponseCode, res.Uploaded, res.Settled)
		return err
	},
}

var reverseHost int

var reverseCmd = &cobra.Command{
	Use:   "reverse",
	Short: "Send the pending reversals of a host",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		host, err := a.resolveHost(reverseHost)
		if err != nil {
			return err
		}
		a.mu.Lock()
		n, err := a.runner.Reverse(cmd.Context(), host)
		a.mu.Unlock()

		fmt.Fprintf(cmd.OutOrStdout(), "reversed %d\n", n)
		return err
	},
}

var voidFlags struct {
	host    int
	invoice uint32
}

var voidCmd = &cobra.Command{
	Use:   "void",
	Short: "Void an approved transaction of the open batch",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		host, err := a.resolveHost(voidFlags.host)
		if err != nil {
			return err
		}
		a.mu.Lock()
		tx, err := a.runner.Void(cmd.Context(), host, voidFlags.invoice)
		a.mu.Unlock()

		if tx != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "invoice %06d stan %06d status %s response %q\n",
				tx.InvoiceNumber, tx.STAN, tx.Status, tx.ResponseCode)
		}
		return err
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled host tests and the admin API until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		sched := scheduler.New(a.log)
		if err := sched.AddJob(a.cfg.EchoSchedule, scheduler.NewEchoJob(a.runner, a.hosts.Definitions(), &a.mu, a.log)); err != nil {
			return fmt.Errorf("schedule echo: %w", err)
		}
		sched.Start()
		adm := admin.Serve(a.cfg.AdminAddr, a.state, a.log)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		sched.Stop()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = adm.Shutdown(shutdown)
		a.log.Info().Msg("terminal stopped")
		return nil
	},
}

func init() {
	echoCmd.Flags().IntVar(&echoHost, "host", 0, "host index (default every host)")

	f := saleCmd.Flags()
	f.IntVar(&saleFlags.host, "host", 0, "host index")
	f.StringVar(&saleFlags.pan, "pan", "", "card number")
	f.StringVar(&saleFlags.expiry, "expiry", "", "expiry date YYMM")
	f.Uint64Var(&saleFlags.amount, "amount", 0, "amount in minor units")
	f.Uint64Var(&saleFlags.tip, "tip", 0, "tip in minor units")
	f.StringVar(&saleFlags.cvv, "cvv", "", "card verification value")
	f.Uint32Var(&saleFlags.batch, "batch", 1, "batch number")
	_ = saleCmd.MarkFlagRequired("pan")
	_ = saleCmd.MarkFlagRequired("amount")

	settleCmd.Flags().IntVar(&settleFlags.host, "host", 0, "host index")
	settleCmd.Flags().Uint32Var(&settleFlags.batch, "batch", 1, "batch number")

	reverseCmd.Flags().IntVar(&reverseHost, "host", 0, "host index")

	voidCmd.Flags().IntVar(&voidFlags.host, "host", 0, "host index")
	voidCmd.Flags().Uint32Var(&voidFlags.invoice, "invoice", 0, "invoice number")
	_ = voidCmd.MarkFlagRequired("invoice")
}
