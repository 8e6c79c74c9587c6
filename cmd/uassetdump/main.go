// Command uassetdump is a thin, non-core demonstration harness over the
// uasset library: it mounts a set of containers, preloads every package
// header, and prints asset metadata as indented JSON to stdout. It exists
// to exercise the library surface, not to specify it.
package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ue-toolkit/uasset"
)

var (
	pakFiles     []string
	containers   []string
	globalTOC    string
	globalCAS    string
	usmapPath    string
	aesKeyHex    string
	parallelism  int
	exportFilter string
)

func prettyPrint(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<error marshaling: %v>", err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "\t"); err != nil {
		return string(raw)
	}
	return buf.String()
}

func parseContainerPairs(pairs []string) ([]uasset.ContainerFiles, error) {
	out := make([]uasset.ContainerFiles, 0, len(pairs))
	for _, p := range pairs {
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --container value %q, expected toc:cas", p)
		}
		out = append(out, uasset.ContainerFiles{TocPath: parts[0], CasPath: parts[1]})
	}
	return out, nil
}

func openReader() (*uasset.Reader, error) {
	containerPairs, err := parseContainerPairs(containers)
	if err != nil {
		return nil, err
	}

	cfg := uasset.Config{
		PakFiles:    pakFiles,
		Containers:  containerPairs,
		UsmapPath:   usmapPath,
		Parallelism: parallelism,
	}
	if globalTOC != "" && globalCAS != "" {
		cfg.GlobalContainer = &uasset.ContainerFiles{TocPath: globalTOC, CasPath: globalCAS}
	}
	if aesKeyHex != "" {
		key, err := hex.DecodeString(aesKeyHex)
		if err != nil {
			return nil, fmt.Errorf("invalid --aes-key: %w", err)
		}
		cfg.AESKey = key
	}

	return uasset.Open(cfg)
}

func runDump(cmd *cobra.Command, args []string) error {
	rd, err := openReader()
	if err != nil {
		return err
	}
	defer rd.Close()

	if err := rd.PreloadAllMetadata(context.Background()); err != nil {
		return err
	}

	for _, group := range rd.Groups() {
		if exportFilter != "" && !strings.Contains(group.PackagePath, exportFilter) {
			continue
		}
		fmt.Printf("=== %s ===\n", group.PackagePath)
		fmt.Println(prettyPrint(group.Metadata()))
	}
	return nil
}

func runDeserialize(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: uassetdump read <packagePath.exportName>")
	}
	rd, err := openReader()
	if err != nil {
		return err
	}
	defer rd.Close()

	if err := rd.PreloadAllMetadata(context.Background()); err != nil {
		return err
	}

	export, group, ok := rd.ResolveExport(args[0])
	if !ok {
		return fmt.Errorf("export not found: %s", args[0])
	}
	bag, diags, err := rd.DeserializeExport(group, export)
	if err != nil {
		return err
	}
	fmt.Println(prettyPrint(bag))
	if len(diags) > 0 {
		log.Printf("%d diagnostics recorded during deserialization", len(diags))
	}
	return nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "uassetdump",
		Short: "Inspects packaged Unreal Engine asset containers",
		Long:  "Mounts Pak and IoStore containers and prints decoded asset metadata and properties as JSON.",
	}
	rootCmd.PersistentFlags().StringSliceVar(&pakFiles, "pak", nil, "path to a .pak file (repeatable)")
	rootCmd.PersistentFlags().StringSliceVar(&containers, "container", nil, "toc:cas path pair for an IoStore container (repeatable)")
	rootCmd.PersistentFlags().StringVar(&globalTOC, "global-toc", "", "path to global.utoc")
	rootCmd.PersistentFlags().StringVar(&globalCAS, "global-cas", "", "path to global.ucas")
	rootCmd.PersistentFlags().StringVar(&usmapPath, "usmap", "", "path to a .usmap type-mapping file")
	rootCmd.PersistentFlags().StringVar(&aesKeyHex, "aes-key", "", "hex-encoded AES-256 key for encrypted containers")
	rootCmd.PersistentFlags().IntVar(&parallelism, "parallelism", 0, "worker count for metadata preload (0 = CPU count)")

	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Preload every package header and print its metadata",
		RunE:  runDump,
	}
	dumpCmd.Flags().StringVar(&exportFilter, "filter", "", "only dump package paths containing this substring")
	rootCmd.AddCommand(dumpCmd)

	readCmd := &cobra.Command{
		Use:   "read <packagePath.exportName>",
		Short: "Deserialize one export's property bag and print it",
		Args:  cobra.ExactArgs(1),
		RunE:  runDeserialize,
	}
	rootCmd.AddCommand(readCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("uassetdump 0.1.0")
		},
	}
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
