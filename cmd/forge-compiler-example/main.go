// Package main implements a trivial reference compiler exercising the
// external compiler contract (info / compiler-hash / compile over stdout
// JSON) documented in internal/compiler. Its transform, "uppercase",
// reads the bytes of its first source dependency, uppercases them, and
// writes the result back to the content store under the resulting
// content identifier.
//
// It exists for integration tests to drive the full discovery -> hash ->
// compile -> cache round-trip against a real subprocess rather than a
// fake compiler function.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgecore/forge/internal/config"
	"github.com/forgecore/forge/internal/content"
	"github.com/forgecore/forge/internal/contentid"
	"github.com/forgecore/forge/pkg/version"
)

const (
	transformName = "uppercase"
	codeVersion   = "1"
	dataVersion   = "1"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "forge-compiler-example",
		Short:         "Reference compiler implementing the uppercase transform",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newInfoCmd(), newCompilerHashCmd(), newCompileCmd())
	return cmd
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print this compiler's self-description as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := struct {
				BuildVersion string `json:"build_version"`
				CodeVersion  string `json:"code_version"`
				DataVersion  string `json:"data_version"`
				Transform    string `json:"transform"`
			}{
				BuildVersion: version.CoreVersion(),
				CodeVersion:  codeVersion,
				DataVersion:  dataVersion,
				Transform:    transformName,
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(info)
		},
	}
}

func newCompilerHashCmd() *cobra.Command {
	var target, platform, locale, transform string

	cmd := &cobra.Command{
		Use:   "compiler-hash",
		Short: "Print this compiler's opaque compiler-hash list as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if transform == "" {
				transform = transformName
			}
			h := fnv.New64a()
			fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%s\x00%s", transform, codeVersion, dataVersion, target, platform, locale)

			resp := struct {
				CompilerHashList [][2]any `json:"compiler_hash_list"`
			}{
				CompilerHashList: [][2]any{{transform, h.Sum64()}},
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(resp)
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "")
	cmd.Flags().StringVar(&platform, "platform", "", "")
	cmd.Flags().StringVar(&locale, "locale", "", "")
	cmd.Flags().StringVar(&transform, "transform", "", "")
	return cmd
}

func newCompileCmd() *cobra.Command {
	var (
		srcDeps           []string
		derDeps           []string
		offlineManifestID string
		target            string
		platform          string
		locale            string
	)

	cmd := &cobra.Command{
		Use:   "compile <resource-path-id>",
		Short: "Uppercase the first source dependency's bytes and write the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, args[0], srcDeps, derDeps, offlineManifestID, target, platform, locale)
		},
	}

	cmd.Flags().StringArrayVar(&srcDeps, "src-deps", nil, "Source dependency content identifiers")
	cmd.Flags().StringArrayVar(&derDeps, "der-deps", nil, "Derived dependency compiled-resource identifiers")
	cmd.Flags().StringVar(&offlineManifestID, "offline-manifest-id", "", "")
	cmd.Flags().StringVar(&target, "target", "", "")
	cmd.Flags().StringVar(&platform, "platform", "", "")
	cmd.Flags().StringVar(&locale, "locale", "", "")
	return cmd
}

func runCompile(cmd *cobra.Command, pathID string, srcDeps, _ []string, _, _, _, _ string) error {
	if len(srcDeps) == 0 {
		return fmt.Errorf("uppercase transform requires at least one --src-deps content identifier")
	}

	srcID, err := contentid.Parse(srcDeps[0])
	if err != nil {
		return fmt.Errorf("parse src dependency identifier %q: %w", srcDeps[0], err)
	}

	ctx := cmd.Context()

	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("load content store config: %w", err)
	}
	store, err := content.NewProviderFromConfig(cfg.ContentStore)
	if err != nil {
		return fmt.Errorf("build content provider: %w", err)
	}

	reader, err := store.GetContentReader(ctx, srcID)
	if err != nil {
		return fmt.Errorf("read source content %s: %w", srcID, err)
	}
	data, err := io.ReadAll(reader)
	reader.Close()
	if err != nil {
		return fmt.Errorf("read source content %s: %w", srcID, err)
	}

	out := bytes.ToUpper(data)
	outID := contentid.NewFromDataWithThreshold(out, cfg.ContentStore.InlineThreshold)

	exists, err := store.Exists(ctx, outID)
	if err != nil {
		return fmt.Errorf("check existing output content %s: %w", outID, err)
	}
	if !exists {
		writer, err := store.GetContentWriter(ctx, outID)
		if err != nil {
			return fmt.Errorf("open output content writer for %s: %w", outID, err)
		}
		if _, err := writer.Write(out); err != nil {
			writer.Close()
			return fmt.Errorf("write output content %s: %w", outID, err)
		}
		if err := writer.Close(); err != nil {
			return fmt.Errorf("commit output content %s: %w", outID, err)
		}
	}

	resp := struct {
		CompiledResources []struct {
			Path       string `json:"path"`
			Identifier string `json:"identifier"`
		} `json:"compiled_resources"`
		ResourceReferences []struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"resource_references"`
	}{}
	resp.CompiledResources = append(resp.CompiledResources, struct {
		Path       string `json:"path"`
		Identifier string `json:"identifier"`
	}{Path: pathID, Identifier: outID.String()})

	return json.NewEncoder(cmd.OutOrStdout()).Encode(resp)
}
