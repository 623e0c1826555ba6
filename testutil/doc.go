// Package testutil provides testing utilities for imageds.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating seeded random arrays and samples,
// and for laying out PNG image trees on disk.
//
// # Random Sample Generation
//
//	rng := testutil.NewRNG(seed)
//	arr := rng.RandomImage(32, 32, 3)
//	s := rng.RandomSample(schema)
//
// # Image Trees
//
//	n := testutil.WriteImageTree(t, dir, []string{"cat", "dog"}, 4, 16, 16)
package testutil
