package experiment

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// FunctionalResult reports the lightweight functional checks.
type FunctionalResult struct {
	TxtPath        string
	ReadYourWrites bool
	DeleteWorks    bool
}

// Pass is true when every check succeeded.
func (r *FunctionalResult) Pass() bool {
	return r.ReadYourWrites && r.DeleteWorks
}

// RunFunctional checks read-your-writes and tombstone semantics against
// the primary node.
func RunFunctional(ctx context.Context, env *Env) (*FunctionalResult, error) {
	cfg := env.Cfg
	if err := cfg.Paths.EnsureDirs(); err != nil {
		return nil, err
	}

	ts := timestamp()
	txtPath := env.rawPath("functional", ts, ".txt")
	f, err := os.Create(txtPath)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", txtPath, err)
	}
	defer f.Close()

	primary := env.Cluster.Primary()
	key := "func-" + uuid.NewString()[:8]
	value := []byte("functional-test-value")

	fmt.Fprintf(f, "Functional tests @ %s\n", ts)
	fmt.Fprintf(f, "Primary node: %s\n", primary.Name())
	fmt.Fprintf(f, "Key: %s\n\n", key)

	res := &FunctionalResult{TxtPath: txtPath}

	fmt.Fprintf(f, "1) PUT then GET on primary\n")
	if err := primary.Put(ctx, key, value, primary.Name()); err != nil {
		return nil, fmt.Errorf("functional put: %w", err)
	}
	r1, err := primary.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("functional get: %w", err)
	}
	res.ReadYourWrites = r1.Found && bytes.Equal(r1.Value, value)
	fmt.Fprintf(f, "   GET found=%v\n", r1.Found)
	fmt.Fprintf(f, "   PASS=%v\n\n", res.ReadYourWrites)

	fmt.Fprintf(f, "2) DELETE then GET on primary\n")
	if err := primary.Delete(ctx, key, primary.Name()); err != nil {
		return nil, fmt.Errorf("functional delete: %w", err)
	}
	r2, err := primary.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("functional get after delete: %w", err)
	}
	res.DeleteWorks = !r2.Found
	fmt.Fprintf(f, "   GET after delete found=%v\n", r2.Found)
	fmt.Fprintf(f, "   PASS=%v\n\n", res.DeleteWorks)

	fmt.Fprintf(f, "Overall PASS=%v\n", res.Pass())
	return res, nil
}
