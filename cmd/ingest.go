package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"document-index/internal/graphstore"
	"document-index/internal/helper"
	"document-index/internal/llmservice"
	"document-index/internal/models"
	"document-index/internal/pipeline"
	"document-index/internal/rag"
	"document-index/internal/worker"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func ingestCMD() *cobra.Command {
	var userID, name, text string
	var queue, dryRun bool
	ingest := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Extract, chunk and embed a document into the vector store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			if (path == "") == (text == "") {
				return fmt.Errorf("%w: pass either a file or --text", models.ErrInvalidInput)
			}
			if name == "" && path != "" {
				name = filepath.Base(path)
			}

			if queue {
				client, err := newRedis(ctx)
				if err != nil {
					return err
				}
				defer client.Close()
				abs := path
				if path != "" {
					if abs, err = filepath.Abs(path); err != nil {
						return err
					}
				}
				id, err := worker.NewPublisher(client, cfg.Worker.Stream).Publish(ctx, worker.Job{
					UserID: userID, DocumentName: name, FilePath: abs, Text: text,
				})
				if err != nil {
					return err
				}
				log.Info().Str("entry", id).Str("stream", cfg.Worker.Stream).Msg("Queued document")
				return nil
			}

			m := startMetrics(ctx)
			ing, err := openIngestion(ctx, m)
			if err != nil {
				return err
			}
			defer ing.close()

			res, err := ing.pipeline.Ingest(ctx, models.SourceDocument{
				UserID: userID, DocumentName: name, FilePath: path, TextOverride: text,
			})
			if err != nil {
				return err
			}
			if res.Status == pipeline.StatusEmpty {
				log.Warn().Str("file", name).Msg("No content to index")
				return nil
			}
			if dryRun {
				helper.PrettyPrint(res.Metadata)
				log.Info().Int("chunks", len(res.Chunks)).Msg("Dry run, nothing stored")
				return nil
			}
			upserted, err := ing.vectors.Upsert(ctx, res.Chunks)
			if err != nil {
				return err
			}
			helper.PrettyPrint(upserted)
			return nil
		},
	}
	ingest.Flags().StringVarP(&userID, "user", "u", "", "owner of the document")
	ingest.Flags().StringVarP(&name, "name", "n", "", "document name (default is the file name)")
	ingest.Flags().StringVar(&text, "text", "", "index this text instead of a file")
	ingest.Flags().BoolVar(&queue, "queue", false, "enqueue for the worker instead of ingesting now")
	ingest.Flags().BoolVar(&dryRun, "dry-run", false, "run the pipeline without storing chunks")
	_ = ingest.MarkFlagRequired("user")
	return ingest
}

func searchCMD() *cobra.Command {
	var userID, document string
	var k int
	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the vector store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			vectors, closeVectors, err := openStore(ctx, nil)
			if err != nil {
				return err
			}
			defer closeVectors()

			resp, err := vectors.Search(ctx, args[0], k, models.SearchFilter{UserID: userID, FileName: document})
			if err != nil {
				return err
			}
			fmt.Println(resp.Context)
			log.Debug().Interface("citations", resp.Citations).Msg("Search citations")
			return nil
		},
	}
	search.Flags().StringVarP(&userID, "user", "u", "", "only search this user's documents")
	search.Flags().StringVarP(&document, "document", "d", "", "only search this document")
	search.Flags().IntVarP(&k, "k", "k", 0, "number of results (default is rag.search_k)")
	return search
}

func deleteCMD() *cobra.Command {
	var userID, document string
	var withGraph bool
	del := &cobra.Command{
		Use:   "delete",
		Short: "Delete a document's chunks, and optionally its graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			vectors, closeVectors, err := openStore(ctx, nil)
			if err != nil {
				return err
			}
			defer closeVectors()

			n, err := vectors.Delete(ctx, userID, document)
			if err != nil {
				return err
			}
			log.Info().Int("chunks", n).Str("user_id", userID).Str("document", document).Msg("Deleted chunks")
			if !withGraph {
				return nil
			}
			graph, err := openGraph(nil)
			if err != nil {
				return err
			}
			defer graph.Close()
			if _, err := graph.Delete(ctx, graphstore.Scope{UserID: userID, Document: document}); err != nil {
				return err
			}
			return nil
		},
	}
	del.Flags().StringVarP(&userID, "user", "u", "", "owner of the document")
	del.Flags().StringVarP(&document, "document", "d", "", "document name")
	del.Flags().BoolVar(&withGraph, "graph", false, "also delete the document's knowledge graph")
	_ = del.MarkFlagRequired("user")
	_ = del.MarkFlagRequired("document")
	return del
}

func queryCMD() *cobra.Command {
	var userID, document string
	var k int
	var answer bool
	query := &cobra.Command{
		Use:   "query <question>",
		Short: "Retrieve context from both indexes and optionally answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m := startMetrics(ctx)
			vectors, closeVectors, err := openStore(ctx, m)
			if err != nil {
				return err
			}
			defer closeVectors()
			graph, err := openGraph(m)
			if err != nil {
				return err
			}
			defer graph.Close()
			llm, err := llmservice.NewModel(cfg.ChatLLM)
			if err != nil {
				return err
			}

			var stream func(context.Context, []byte) error
			if answer {
				stream = func(_ context.Context, chunk []byte) error {
					_, err := os.Stdout.Write(chunk)
					return err
				}
			}
			r := rag.NewRAG(vectors, graph, llm)
			resp, err := r.Query(ctx, rag.Request{
				UserID: userID, Document: document, Query: args[0], K: k, Answer: answer,
			}, stream)
			if err != nil {
				return err
			}
			if answer {
				fmt.Println()
				return nil
			}
			fmt.Printf("%s\n\n%s\n", resp.Search.Context, resp.Facts)
			return nil
		},
	}
	query.Flags().StringVarP(&userID, "user", "u", "", "owner of the documents")
	query.Flags().StringVarP(&document, "document", "d", "", "document to scope the graph facts to")
	query.Flags().IntVarP(&k, "k", "k", 0, "number of vector results")
	query.Flags().BoolVar(&answer, "answer", false, "generate an answer with the chat model")
	return query
}
