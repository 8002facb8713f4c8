// Command psopackc builds pipeline state archives from a JSON
// manifest.
//
// Usage:
//
//	psopackc [options] <manifest.json>
//
// Examples:
//
//	psopackc pipeline.json                        # Archive for all backends
//	psopackc -backend metal pipeline.json         # Single backend
//	psopackc -query -backend d3d12 pipeline.json  # Print the binding table
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/psopack"
	"github.com/gogpu/psopack/archive"
	"github.com/gogpu/psopack/backend"
	"github.com/gogpu/psopack/signature"
	"github.com/gogpu/psopack/source"
)

var (
	backends = flag.String("backend", "", "comma-separated backends (default: all registered)")
	output   = flag.String("o", "", "output archive file (default: <pipeline>.psar)")
	dumpDir  = flag.String("dump", "", "keep patched sources and artifacts under this directory")
	query    = flag.Bool("query", false, "print the binding table instead of building")
	version  = flag.Bool("version", false, "print version")
)

const psopackVersion = "0.1.0-dev"

// manifest mirrors BuildRequest with file references in place of
// inline source text. Paths are relative to the manifest file.
// Substitutions redirect a logical source name to another file, e.g.
// to swap in a platform-specific variant without editing stage entries.
type manifest struct {
	Pipeline      string             `json:"pipeline"`
	Signatures    []manifestSig      `json:"signatures"`
	Stages        []manifestStage    `json:"stages"`
	Substitutions map[string]string  `json:"substitutions"`
	Query         manifestQueryAttrs `json:"query"`
}

type manifestSig struct {
	Name         string        `json:"name"`
	BindingIndex uint8         `json:"bindingIndex"`
	Resources    []manifestRes `json:"resources"`
}

type manifestRes struct {
	Name      string   `json:"name"`
	Class     string   `json:"class"`
	ArraySize uint32   `json:"arraySize"`
	Stages    []string `json:"stages"`
}

type manifestStage struct {
	Name       string        `json:"name"`
	Stage      string        `json:"stage"`
	EntryPoint string        `json:"entryPoint"`
	SourceFile string        `json:"sourceFile"`
	GroupSize  [3]uint32     `json:"groupSize"`
	Resources  []manifestRef `json:"resources"`
}

type manifestRef struct {
	Name    string `json:"name"`
	AltName string `json:"altName"`
	Class   string `json:"class"`
}

type manifestQueryAttrs struct {
	Stages           []string `json:"stages"`
	NumVertexBuffers uint32   `json:"numVertexBuffers"`
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *version {
		fmt.Printf("psopackc version %s\n", psopackVersion)
		return
	}

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: no manifest file specified")
		usage()
		os.Exit(1)
	}

	m, err := loadManifest(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading manifest: %v\n", err)
		os.Exit(1)
	}

	targets, err := selectTargets(*backends)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	sigs, err := m.signatures()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error in manifest: %v\n", err)
		os.Exit(1)
	}

	if *query {
		if err := printBindings(m, sigs, targets); err != nil {
			fmt.Fprintf(os.Stderr, "Query error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	stages, err := m.stages(filepath.Dir(args[0]))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error in manifest: %v\n", err)
		os.Exit(1)
	}

	arc := archive.New()
	for _, target := range targets {
		req := psopack.BuildRequest{
			PipelineName: m.Pipeline,
			Target:       target,
			Stages:       stages,
			Signatures:   sigs,
			DumpDir:      dumpFor(*dumpDir, target),
		}
		if err := psopack.BuildPipeline(arc, req, psopack.Options{}); err != nil {
			fmt.Fprintf(os.Stderr, "Build error: %v\n", err)
			os.Exit(1)
		}
	}

	blob := arc.Finalize().Encode()
	outPath := *output
	if outPath == "" {
		outPath = m.Pipeline + ".psar"
	}
	if err := os.WriteFile(outPath, blob, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Archived %q for %d backend(s) to %s (%d entries, %d bytes)\n",
		m.Pipeline, len(targets), outPath, arc.Len(), len(blob))
}

func loadManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := &manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}

func selectTargets(spec string) ([]backend.Target, error) {
	if spec == "" {
		return backend.Targets(), nil
	}
	var targets []backend.Target
	for _, name := range strings.Split(spec, ",") {
		t, err := backend.ParseTarget(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func dumpFor(root string, target backend.Target) string {
	if root == "" {
		return ""
	}
	return filepath.Join(root, target.String())
}

func parseStageMask(names []string) (signature.StageMask, error) {
	var mask signature.StageMask
	for _, name := range names {
		stage, err := signature.ParseStage(name)
		if err != nil {
			return 0, err
		}
		mask |= stage.Mask()
	}
	return mask, nil
}

func (m *manifest) signatures() ([]*signature.Signature, error) {
	var sigs []*signature.Signature
	for _, ms := range m.Signatures {
		resources := make([]signature.ResourceDesc, len(ms.Resources))
		for i, mr := range ms.Resources {
			class, err := signature.ParseClass(mr.Class)
			if err != nil {
				return nil, fmt.Errorf("signature %q: %w", ms.Name, err)
			}
			mask, err := parseStageMask(mr.Stages)
			if err != nil {
				return nil, fmt.Errorf("signature %q: %w", ms.Name, err)
			}
			arraySize := mr.ArraySize
			if arraySize == 0 {
				arraySize = 1
			}
			resources[i] = signature.ResourceDesc{
				Name:      mr.Name,
				Class:     class,
				ArraySize: arraySize,
				Stages:    mask,
			}
		}
		sig, err := signature.New(ms.Name, ms.BindingIndex, resources)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

func (m *manifest) stages(baseDir string) ([]*backend.ShaderIR, error) {
	factory := source.NewFactory(os.DirFS(baseDir))
	for logical, actual := range m.Substitutions {
		factory.Substitute(logical, actual)
	}

	var stages []*backend.ShaderIR
	for _, ms := range m.Stages {
		stage, err := signature.ParseStage(ms.Stage)
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", ms.Name, err)
		}
		text, err := factory.Resolve(ms.SourceFile)
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", ms.Name, err)
		}
		refs := make([]backend.ResourceRef, len(ms.Resources))
		for i, mr := range ms.Resources {
			class, err := signature.ParseClass(mr.Class)
			if err != nil {
				return nil, fmt.Errorf("stage %q: %w", ms.Name, err)
			}
			refs[i] = backend.ResourceRef{Name: mr.Name, AltName: mr.AltName, Class: class}
		}
		stages = append(stages, &backend.ShaderIR{
			Name:       ms.Name,
			Stage:      stage,
			EntryPoint: ms.EntryPoint,
			Source:     string(text),
			Resources:  refs,
			GroupSize:  ms.GroupSize,
		})
	}
	return stages, nil
}

func printBindings(m *manifest, sigs []*signature.Signature, targets []backend.Target) error {
	attribs := backend.QueryAttribs{NumVertexBuffers: m.Query.NumVertexBuffers}
	for _, name := range m.Query.Stages {
		stage, err := signature.ParseStage(name)
		if err != nil {
			return err
		}
		attribs.Stages |= stage.Mask()
	}

	for _, target := range targets {
		bindings, err := psopack.QueryResourceBindings(target, sigs, attribs, psopack.Options{})
		if err != nil {
			return err
		}
		fmt.Printf("%s:\n", target)
		for _, b := range bindings {
			stages := make([]string, 0, signature.NumStages)
			for _, s := range b.Stages.Stages() {
				stages = append(stages, s.String())
			}
			fmt.Printf("  %-24s %-13s slot=%-3d space=%-2d stages=%s\n",
				b.Name, b.Class, b.Slot, b.Space, strings.Join(stages, ","))
		}
	}
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: psopackc [options] <manifest.json>\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  psopackc pipeline.json                 Archive for every backend\n")
	fmt.Fprintf(os.Stderr, "  psopackc -backend metal pipeline.json  Archive for Metal only\n")
	fmt.Fprintf(os.Stderr, "  psopackc -query pipeline.json          Print the binding table\n")
}
