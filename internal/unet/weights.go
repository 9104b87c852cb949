package unet

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/sbinet/npyio/npz"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrWeightsNotFound is returned by Load when the archive does not exist.
var ErrWeightsNotFound = errors.New("unet: weights file not found")

const npyExt = ".npy"

// Load reads a NumPy .npz archive holding one float32 array per entry of
// arch.Params(). Arrays may be stored with their full shape or flattened.
//
// Entries are looked up by parameter name, as written by Save. An archive
// without named entries is read positionally: arr_0, arr_1, ... in
// Params order, which is the order Keras model.get_weights() returns for
// the trained model, so np.savez(path, *model.get_weights()) loads as is.
func Load(path string, arch Architecture) (Weights, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrWeightsNotFound, path)
		}
		return nil, fmt.Errorf("unet: stat weights: %w", err)
	}

	r, err := npz.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unet: open weights: %w", err)
	}
	defer r.Close()

	params := arch.Params()
	entries, err := entryNames(r.Keys(), params)
	if err != nil {
		return nil, err
	}

	w := make(Weights)
	for i, p := range params {
		entry := entries[i]
		if hdr := r.Header(entry); hdr != nil {
			if hdr.Descr.Fortran {
				return nil, fmt.Errorf("unet: %s is stored in Fortran order", p.Name)
			}
			if len(hdr.Descr.Shape) > 1 && !sameShape(hdr.Descr.Shape, p.Shape) {
				return nil, fmt.Errorf("unet: %s has shape %v, want %v", p.Name, hdr.Descr.Shape, p.Shape)
			}
		}
		var data []float32
		if err := r.Read(entry, &data); err != nil {
			return nil, fmt.Errorf("unet: read %s: %w", p.Name, err)
		}
		if len(data) != p.Size() {
			return nil, fmt.Errorf("unet: %s has %d values, want %d", p.Name, len(data), p.Size())
		}
		w[p.Name] = data
	}
	return w, nil
}

// Save writes w as an .npz archive readable by Load. Arrays are stored
// flattened.
func Save(path string, arch Architecture, w Weights) error {
	zw, err := npz.Create(path)
	if err != nil {
		return fmt.Errorf("unet: create weights: %w", err)
	}
	for _, p := range arch.Params() {
		v, ok := w[p.Name]
		if !ok {
			zw.Close()
			return fmt.Errorf("unet: missing parameter %s", p.Name)
		}
		if err := zw.Write(p.Name+npyExt, v); err != nil {
			zw.Close()
			return fmt.Errorf("unet: write %s: %w", p.Name, err)
		}
	}
	return zw.Close()
}

// entryNames returns the archive entry holding each of params.
func entryNames(keys []string, params []Param) ([]string, error) {
	present := make(map[string]bool, len(keys))
	for _, k := range keys {
		present[strings.TrimSuffix(k, npyExt)] = true
	}

	names := make([]string, len(params))
	if len(params) > 0 && !present[params[0].Name] && present[positional(0)] {
		n := 0
		for present[positional(n)] {
			n++
		}
		if n != len(params) {
			return nil, fmt.Errorf("unet: archive holds %d positional arrays, want %d", n, len(params))
		}
		for i := range params {
			names[i] = positional(i) + npyExt
		}
		return names, nil
	}

	for i, p := range params {
		if !present[p.Name] {
			return nil, fmt.Errorf("unet: weights archive has no %q", p.Name)
		}
		names[i] = p.Name + npyExt
	}
	return names, nil
}

func positional(i int) string {
	return fmt.Sprintf("arr_%d", i)
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// RandomInit returns untrained weights following the Keras initializers:
// Glorot-uniform kernels, zero biases, unit forget-gate bias and identity
// batch-norm statistics. The same seed always yields the same weights.
func RandomInit(arch Architecture, seed uint64) Weights {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	w := make(Weights)
	for _, p := range arch.Params() {
		data := make([]float32, p.Size())
		name := p.Name
		switch {
		case strings.HasSuffix(name, "kernel"):
			k, in, out := p.Shape[0], p.Shape[2], p.Shape[3]
			limit := math.Sqrt(6 / float64(k*k*in+k*k*out))
			u := distuv.Uniform{Min: -limit, Max: limit, Src: src}
			for i := range data {
				data[i] = float32(u.Rand())
			}
		case name == "bottleneck.bias":
			f := arch.BottleneckFilters
			for i := f; i < 2*f; i++ {
				data[i] = 1
			}
		case strings.HasSuffix(name, ".gamma"), strings.HasSuffix(name, ".moving_variance"):
			for i := range data {
				data[i] = 1
			}
		}
		w[name] = data
	}
	return w
}
