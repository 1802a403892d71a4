package main

import (
	"encoding/json"
	"fmt"
	"os"

	"document-index/internal/graphstore"
	"document-index/internal/helper"
	"document-index/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func graphCMD() *cobra.Command {
	var scope graphstore.Scope
	graph := &cobra.Command{
		Use:   "graph",
		Short: "Manage a document's knowledge graph",
	}
	graph.PersistentFlags().StringVarP(&scope.UserID, "user", "u", "", "owner of the document")
	graph.PersistentFlags().StringVarP(&scope.Document, "document", "d", "", "document name")
	_ = graph.MarkPersistentFlagRequired("user")
	_ = graph.MarkPersistentFlagRequired("document")

	var replace bool
	ingest := &cobra.Command{
		Use:   "ingest <graph.json>",
		Short: "Merge nodes and edges from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read graph file: %w", err)
			}
			var kg models.KnowledgeGraph
			if err := json.Unmarshal(data, &kg); err != nil {
				return fmt.Errorf("%w: failed to decode graph file: %v", models.ErrInvalidInput, err)
			}

			m := startMetrics(cmd.Context())
			svc, err := openGraph(m)
			if err != nil {
				return err
			}
			defer svc.Close()
			var opts []graphstore.IngestOption
			if replace {
				opts = append(opts, graphstore.WithReplace())
			}
			res, err := svc.Ingest(cmd.Context(), scope, kg, opts...)
			if err != nil {
				return err
			}
			helper.PrettyPrint(res)
			return nil
		},
	}
	ingest.Flags().BoolVar(&replace, "replace", false, "delete the existing graph first")

	get := &cobra.Command{
		Use:   "get",
		Short: "Print the stored graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openGraph(nil)
			if err != nil {
				return err
			}
			defer svc.Close()
			kg, err := svc.Get(cmd.Context(), scope)
			if err != nil {
				return err
			}
			helper.PrettyPrint(kg)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete",
		Short: "Delete the stored graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openGraph(nil)
			if err != nil {
				return err
			}
			defer svc.Close()
			found, err := svc.Delete(cmd.Context(), scope)
			if err != nil {
				return err
			}
			if !found {
				log.Warn().Str("user_id", scope.UserID).Str("document", scope.Document).Msg("No graph to delete")
			}
			return nil
		},
	}

	search := &cobra.Command{
		Use:   "search <text>",
		Short: "Print facts matching text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openGraph(nil)
			if err != nil {
				return err
			}
			defer svc.Close()
			facts, err := svc.Search(cmd.Context(), scope, args[0])
			if err != nil {
				return err
			}
			fmt.Println(facts)
			return nil
		},
	}

	graph.AddCommand(ingest, get, del, search)
	return graph
}
