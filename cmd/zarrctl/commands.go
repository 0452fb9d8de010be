package main

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	zarr "github.com/qri-io/boundless-zarr"
)

var (
	mkgroupParents bool

	createShape      []int
	createChunks     []int
	createDtype      string
	createFill       string
	createCompressor string
	createLevel      int
	createSeparator  string
	createBoundless  bool
	createNDim       int

	boundless bool
)

var treeCmd = &cobra.Command{
	Use:   "tree [path]",
	Short: "Print the groups and arrays beneath a group",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTree,
}

var mkgroupCmd = &cobra.Command{
	Use:   "mkgroup <path>",
	Short: "Create a group",
	Long: `Creates a group and any missing parent groups. Without -p the group
itself must not exist yet.`,
	Args: cobra.ExactArgs(1),
	RunE: runMkgroup,
}

var createCmd = &cobra.Command{
	Use:   "create <path>",
	Short: "Create an array",
	Long: `Creates an array and any missing parent groups.

Example:
  zarrctl create temps --shape 365,24 --chunks 30,24 --dtype "<f4" --fill NaN
  zarrctl create world --boundless --ndim 2 --dtype "<i4"`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

var infoCmd = &cobra.Command{
	Use:   "info [path]",
	Short: "Describe a group or array as YAML",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInfo,
}

var getCmd = &cobra.Command{
	Use:   "get <path> [selection...]",
	Short: "Read elements of an array",
	Long: `Reads the elements picked by a selection, one selector per dimension:
an index ("3"), a range ("0:10", "0:10:2", ":") or "...". Selectors may be
given as separate arguments or comma separated.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGet,
}

var setCmd = &cobra.Command{
	Use:   "set <path> <value> [selection...]",
	Short: "Write a value to every element of a selection",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSet,
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate [path]",
	Short: "Gather the metadata beneath a group into .zmetadata",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConsolidate,
}

func init() {
	mkgroupCmd.Flags().BoolVarP(&mkgroupParents, "parents", "p", false, "No error if the group exists")

	createCmd.Flags().IntSliceVar(&createShape, "shape", nil, "Array shape, e.g. 100,100")
	createCmd.Flags().IntSliceVar(&createChunks, "chunks", nil, "Chunk shape (guessed when omitted)")
	createCmd.Flags().StringVar(&createDtype, "dtype", zarr.DefaultDtype.String(), "Element type, e.g. <i4, <f8, |b1")
	createCmd.Flags().StringVar(&createFill, "fill", "", "Fill value for unwritten elements")
	createCmd.Flags().StringVar(&createCompressor, "compressor", zarr.DefaultCompressor.ID, "Chunk codec: zstd, gzip or none")
	createCmd.Flags().IntVar(&createLevel, "level", zarr.DefaultCompressor.Clevel, "Compression level")
	createCmd.Flags().StringVar(&createSeparator, "separator", "", `Chunk key separator, "." or "/"`)
	createCmd.Flags().BoolVar(&createBoundless, "boundless", false, "Create a boundless array centered on zero")
	createCmd.Flags().IntVar(&createNDim, "ndim", 2, "Dimensions of a boundless array")

	getCmd.Flags().BoolVar(&boundless, "boundless", false, "Address the array relative to its center")
	setCmd.Flags().BoolVar(&boundless, "boundless", false, "Address the array relative to its center")
}

func runTree(cmd *cobra.Command, args []string) error {
	return withRoot(func(root *zarr.Group) error {
		g := root
		if len(args) == 1 {
			var err error
			if g, err = root.GetGroup(args[0]); err != nil {
				return err
			}
		}
		tree, err := g.Tree()
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), tree)
		return nil
	})
}

func runMkgroup(cmd *cobra.Command, args []string) error {
	return withRoot(func(root *zarr.Group) error {
		var (
			g   *zarr.Group
			err error
		)
		if mkgroupParents {
			g, err = root.RequireGroup(args[0])
		} else {
			g, err = root.CreateGroup(args[0])
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), g.Name())
		return nil
	})
}

func runCreate(cmd *cobra.Command, args []string) error {
	dt, err := zarr.ParseDtype(createDtype)
	if err != nil {
		return err
	}
	opts, err := arrayOptions(zarr.WithDtype(dt), zarr.WithLogger(logger))
	if err != nil {
		return err
	}
	if createFill != "" {
		fill, err := parseValue(createFill)
		if err != nil {
			return err
		}
		opts = append(opts, zarr.WithFillValue(fill))
	}
	switch createCompressor {
	case "none":
		opts = append(opts, zarr.WithNoCompressor())
	default:
		opts = append(opts, zarr.WithCompressor(createCompressor, createLevel))
	}
	if createChunks != nil {
		opts = append(opts, zarr.WithChunks(createChunks...))
	}
	if createSeparator != "" {
		opts = append(opts, zarr.WithDimensionSeparator(createSeparator))
	}

	return withRoot(func(root *zarr.Group) error {
		var info zarr.ArrayInfo
		if createBoundless {
			if dir := path.Dir(strings.Trim(args[0], "/")); dir != "." {
				if _, err := root.RequireGroup(dir); err != nil {
					return err
				}
			}
			if info, err = zarr.CreateBoundless(root.Store(), args[0], createNDim, opts...); err != nil {
				return err
			}
		} else {
			if createShape == nil {
				return fmt.Errorf("--shape is required")
			}
			opts = append(opts, zarr.WithShape(createShape...))
			if info, err = root.CreateDataset(args[0], opts...); err != nil {
				return err
			}
		}
		fmt.Fprint(cmd.OutOrStdout(), info.Info())
		return nil
	})
}

// nodeInfo is the YAML form of a group or array description
type nodeInfo struct {
	Name              string          `yaml:"name"`
	Kind              string          `yaml:"kind"`
	Store             string          `yaml:"store"`
	Shape             []int           `yaml:"shape,omitempty,flow"`
	Chunks            []int           `yaml:"chunks,omitempty,flow"`
	Dtype             string          `yaml:"dtype,omitempty"`
	Order             string          `yaml:"order,omitempty"`
	Compressor        string          `yaml:"compressor,omitempty"`
	FillValue         interface{}     `yaml:"fill_value,omitempty"`
	NChunks           int             `yaml:"nchunks,omitempty"`
	ChunksInitialized int             `yaml:"chunks_initialized,omitempty"`
	BytesStored       int             `yaml:"bytes_stored,omitempty"`
	Members           []string        `yaml:"members,omitempty,flow"`
	Attributes        zarr.Attributes `yaml:"attributes,omitempty"`
}

func describe(n zarr.Node) (*nodeInfo, error) {
	attrs, err := n.Attrs().AsMap()
	if err != nil {
		return nil, err
	}
	info := &nodeInfo{
		Name:       n.Name(),
		Kind:       n.Kind().String(),
		Store:      n.Store().Type(),
		Attributes: attrs,
	}

	switch x := n.(type) {
	case *zarr.Array:
		info.Shape = x.Shape()
		info.Chunks = x.Chunks()
		info.Dtype = x.Dtype().String()
		info.Order = x.Order()
		info.Compressor = "none"
		if c := x.Compressor(); c != nil {
			info.Compressor = c.ID
		}
		info.FillValue = x.FillValue()
		info.NChunks = x.NChunks()
		if info.ChunksInitialized, err = x.NChunksInitialized(); err != nil {
			return nil, err
		}
		if info.BytesStored, err = x.NBytesStored(); err != nil {
			return nil, err
		}
	case *zarr.Group:
		if info.Members, err = x.Keys(); err != nil {
			return nil, err
		}
	}
	return info, nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	return withRoot(func(root *zarr.Group) error {
		var n zarr.Node = root
		if len(args) == 1 {
			var err error
			if n, err = root.Get(args[0]); err != nil {
				return err
			}
		}
		info, err := describe(n)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(info)
	})
}

func runGet(cmd *cobra.Command, args []string) error {
	sel, err := parseSelection(args[1:])
	if err != nil {
		return err
	}
	return withStore(func(store zarr.Store) error {
		a, err := zarr.OpenArray(store, args[0], zarr.ModeRead, zarr.WithLogger(logger))
		if err != nil {
			return err
		}
		var nd *zarr.NDArray
		if boundless {
			b, err := zarr.NewBoundless(a)
			if err != nil {
				return err
			}
			nd, err = b.Get(sel...)
			if err != nil {
				return err
			}
		} else if nd, err = a.Get(sel...); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "shape: %v\n%v\n", nd.Shape, nd.Data)
		return nil
	})
}

func runSet(cmd *cobra.Command, args []string) error {
	value, err := parseValue(args[1])
	if err != nil {
		return err
	}
	sel, err := parseSelection(args[2:])
	if err != nil {
		return err
	}
	opts, err := arrayOptions(zarr.WithLogger(logger))
	if err != nil {
		return err
	}
	return withStore(func(store zarr.Store) error {
		a, err := zarr.OpenArray(store, args[0], zarr.ModeReadWrite, opts...)
		if err != nil {
			return err
		}
		if boundless {
			b, err := zarr.NewBoundless(a)
			if err != nil {
				return err
			}
			return b.Set(value, sel...)
		}
		return a.Set(value, sel...)
	})
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	p := ""
	if len(args) == 1 {
		p = args[0]
	}
	return withStore(func(store zarr.Store) error {
		cm, err := zarr.ConsolidateMetadata(store, p)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "consolidated %d metadata documents\n", len(cm.Metadata))
		return nil
	})
}

// parseSelection reads selectors such as "3", "-2", "0:10", "0:10:2", ":"
// and "...". Each argument may hold several comma separated selectors.
func parseSelection(args []string) (zarr.Tuple, error) {
	sel := zarr.Tuple{}
	for _, arg := range args {
		for _, tok := range strings.Split(arg, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			s, err := parseSelector(tok)
			if err != nil {
				return nil, err
			}
			sel = append(sel, s)
		}
	}
	return sel, nil
}

func parseSelector(tok string) (zarr.Selector, error) {
	if tok == "..." {
		return zarr.Ellipsis, nil
	}
	if !strings.Contains(tok, ":") {
		i, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("invalid index %q", tok)
		}
		return zarr.Index(i), nil
	}

	parts := strings.Split(tok, ":")
	if len(parts) > 3 {
		return nil, fmt.Errorf("invalid range %q", tok)
	}
	bound := func(s string) (*int, error) {
		if s == "" {
			return nil, nil
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid range %q", tok)
		}
		return &v, nil
	}
	var (
		sl  zarr.Slice
		err error
	)
	if sl.Start, err = bound(parts[0]); err != nil {
		return nil, err
	}
	if sl.Stop, err = bound(parts[1]); err != nil {
		return nil, err
	}
	if len(parts) == 3 && parts[2] != "" {
		if sl.Step, err = strconv.Atoi(parts[2]); err != nil {
			return nil, fmt.Errorf("invalid range %q", tok)
		}
	}
	return sl, nil
}

// parseValue reads a scalar: an integer, a float (including NaN and
// Infinity) or true/false
func parseValue(s string) (interface{}, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b, nil
	}
	return nil, fmt.Errorf("invalid value %q", s)
}
