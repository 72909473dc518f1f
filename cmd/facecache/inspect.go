package main

import (
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/face-verify/internal/embedding"
)

func newInspectCmd() *cobra.Command {
	var dim int

	cmd := &cobra.Command{
		Use:   "inspect FILE...",
		Short: "Validate cache entries and print their dimension and norm",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				v, err := embedding.Decode(data, dim)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tinvalid: %v\n", path, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tdim=%d\tnorm=%.4f\n", path, v.Dim(), norm(v))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d entries are invalid", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&dim, "dim", 0, "Expected dimension (0 accepts any)")
	return cmd
}

func norm(v embedding.Vector) float64 {
	var sum float64
	for _, x := range v.Float64s() {
		sum += x * x
	}
	return math.Sqrt(sum)
}
