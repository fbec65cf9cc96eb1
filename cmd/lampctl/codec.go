package main

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rub-lamp/oracle_layer/internal/hoard"
)

func encodeCmd() *cobra.Command {
	var asBase64 bool
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode hoard instruction data",
	}
	cmd.PersistentFlags().BoolVar(&asBase64, "base64", false, "print base64 instead of hex")

	var amount uint64
	var score uint8
	grant := &cobra.Command{
		Use:   "grant-wish",
		Short: "Encode a GrantWish instruction",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeInstruction(cmd, hoard.GrantWish{Amount: amount, Score: score}, asBase64)
		},
	}
	grant.Flags().Uint64Var(&amount, "amount", 0, "payout amount in whole tokens")
	grant.Flags().Uint8Var(&score, "score", 0, "judged score (0-255)")

	var refillAmount uint64
	refill := &cobra.Command{
		Use:   "refill-lamp",
		Short: "Encode a RefillLamp instruction",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeInstruction(cmd, hoard.RefillLamp{Amount: refillAmount}, asBase64)
		},
	}
	refill.Flags().Uint64Var(&refillAmount, "amount", 0, "tokens added to the reserve")

	cmd.AddCommand(grant, refill)
	return cmd
}

func writeInstruction(cmd *cobra.Command, ix hoard.OracleInstruction, asBase64 bool) error {
	data, err := hoard.EncodeInstruction(ix)
	if err != nil {
		return err
	}
	if asBase64 {
		fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(data))
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(data))
	}
	return nil
}

func decodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode hoard instruction or account data (hex or base64)",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "instruction <data>",
			Short: "Decode instruction data",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := parseBytes(args[0])
				if err != nil {
					return err
				}
				ix, err := hoard.DecodeInstruction(data)
				if err != nil {
					return err
				}
				fields := map[string]interface{}{"variant": ix.Variant().String()}
				switch v := ix.(type) {
				case hoard.GrantWish:
					fields["amount"] = v.Amount
					fields["score"] = v.Score
				case hoard.RefillLamp:
					fields["amount"] = v.Amount
				}
				printer(cmd).KV(fields)
				return nil
			},
		},
		&cobra.Command{
			Use:   "state <data>",
			Short: "Decode hoard account data",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := parseBytes(args[0])
				if err != nil {
					return err
				}
				st, err := hoard.DecodeState(data)
				if err != nil {
					return err
				}
				printer(cmd).KV(map[string]interface{}{
					"initialized":   st.IsInitialized,
					"authority":     st.Authority.String(),
					"total_payouts": st.TotalPayouts,
				})
				return nil
			},
		},
	)
	return cmd
}

// parseBytes accepts hex (with or without 0x) and falls back to base64.
func parseBytes(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := hex.DecodeString(strings.TrimPrefix(s, "0x")); err == nil {
		return b, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("data is neither hex nor base64")
	}
	return b, nil
}
