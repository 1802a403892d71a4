package main

import (
	"fmt"

	"document-index/internal/chromemdb"
	"document-index/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func snapshotCMD() *cobra.Command {
	var file string
	snapshot := &cobra.Command{
		Use:   "snapshot",
		Short: "Export or import an encrypted chromem collection snapshot",
	}
	snapshot.PersistentFlags().StringVarP(&file, "file", "f", "", "snapshot file (default is next to the collection)")

	open := func() (*chromemdb.VectorDBManager, error) {
		if cfg.Vector.Backend != "chromem" {
			return nil, fmt.Errorf("%w: snapshots need the chromem backend, have %s", models.ErrUnsupportedBackend, cfg.Vector.Backend)
		}
		return chromemdb.NewVectorDBManager(cfg.Vector.Chromem, cfg.RAG.EncryptionKey)
	}

	export := &cobra.Command{
		Use:   "export",
		Short: "Write the collection to a snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			if err := m.Export(cmd.Context(), cfg.RAG.Collection, file); err != nil {
				return err
			}
			log.Info().Str("collection", cfg.RAG.Collection).Msg("Exported collection")
			return nil
		},
	}

	imp := &cobra.Command{
		Use:   "import",
		Short: "Load the collection from a snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			if err := m.Import(cmd.Context(), cfg.RAG.Collection, file); err != nil {
				return err
			}
			log.Info().Str("collection", cfg.RAG.Collection).Msg("Imported collection")
			return nil
		},
	}

	snapshot.AddCommand(export, imp)
	return snapshot
}
