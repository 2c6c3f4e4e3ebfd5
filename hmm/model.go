// vdjprep: HMM construction and clonal partitioning for B-cell receptor sequences.
// Copyright (c) 2021 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/vdjprep/blob/master/LICENSE.txt>.

package hmm

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/exascience/vdjprep/bins"
	"github.com/exascience/vdjprep/internal"
	"github.com/exascience/vdjprep/params"
)

var (
	// ErrNotNormalized is returned when the transition or emission
	// probabilities of a state do not sum to 1.
	ErrNotNormalized = errors.New("hmm: probabilities not normalized")

	// ErrDuplicateTransition is returned when a state receives two
	// transitions to the same destination.
	ErrDuplicateTransition = errors.New("hmm: duplicate transition")

	// ErrBadEmission is returned when a state receives a second
	// emission, or an emission that does not cover the track.
	ErrBadEmission = errors.New("hmm: invalid emission")
)

// Names of the fixed states.
const (
	InitState        = "init"
	EndState         = "end"
	InsertLeftPrefix = "insert_left_"
	InsertRightState = "insert_right"
)

// NukesTrack is the only track: the four nucleotides.
var NukesTrack = Track{Name: "nukes", Letters: params.Nukes}

// A Track is a named emission alphabet.
type Track struct {
	Name    string
	Letters []string
}

// An Emission is a distribution over the letters of one track.
type Emission struct {
	Track string             `yaml:"track"`
	Probs map[string]float64 `yaml:"probs"`
}

// A PairEmission is a joint distribution over pairs of letters of two
// tracks.
type PairEmission struct {
	Tracks []string                      `yaml:"tracks"`
	Probs  map[string]map[string]float64 `yaml:"probs"`
}

// EmissionKind tells which of the emission fields of a State is set.
type EmissionKind int

// The emission kinds.
const (
	NoEmission EmissionKind = iota
	SingleEmission
	PairedEmission
)

// A State is a node of an HMM. At most one of Emissions and
// PairEmissions is set.
type State struct {
	Name          string                 `yaml:"name"`
	Transitions   map[string]float64     `yaml:"transitions"`
	Emissions     *Emission              `yaml:"emissions,omitempty"`
	PairEmissions *PairEmission          `yaml:"pair_emissions,omitempty"`
	Extras        map[string]interface{} `yaml:"extras,omitempty"`
}

// NewState allocates a state without transitions and emissions.
func NewState(name string) *State {
	return &State{Name: name, Transitions: make(map[string]float64)}
}

// Kind returns which emission the state carries.
func (state *State) Kind() EmissionKind {
	switch {
	case state.Emissions != nil:
		return SingleEmission
	case state.PairEmissions != nil:
		return PairedEmission
	default:
		return NoEmission
	}
}

// AddTransition adds a transition to the named state.
func (state *State) AddTransition(to string, prob float64) error {
	if _, ok := state.Transitions[to]; ok {
		return fmt.Errorf("%w from %v to %v", ErrDuplicateTransition, state.Name, to)
	}
	state.Transitions[to] = prob
	return nil
}

// AddEmission sets the single emission of the state.
func (state *State) AddEmission(track Track, probs map[string]float64) error {
	if state.Kind() != NoEmission {
		return fmt.Errorf("%w: state %v already emits", ErrBadEmission, state.Name)
	}
	for _, letter := range track.Letters {
		if _, ok := probs[letter]; !ok {
			return fmt.Errorf("%w: state %v lacks letter %v", ErrBadEmission, state.Name, letter)
		}
	}
	state.Emissions = &Emission{Track: track.Name, Probs: probs}
	return nil
}

// AddPairEmission sets the pair emission of the state, using track
// for both sequences.
func (state *State) AddPairEmission(track Track, probs map[string]map[string]float64) error {
	if state.Kind() != NoEmission {
		return fmt.Errorf("%w: state %v already emits", ErrBadEmission, state.Name)
	}
	for _, letter1 := range track.Letters {
		row, ok := probs[letter1]
		if !ok {
			return fmt.Errorf("%w: state %v lacks letter %v", ErrBadEmission, state.Name, letter1)
		}
		for _, letter2 := range track.Letters {
			if _, ok := row[letter2]; !ok {
				return fmt.Errorf("%w: state %v lacks letter pair %v%v", ErrBadEmission, state.Name, letter1, letter2)
			}
		}
	}
	state.PairEmissions = &PairEmission{Tracks: []string{track.Name, track.Name}, Probs: probs}
	return nil
}

func checkProbs(what, name string, probs map[string]float64, total *float64) error {
	for key, prob := range probs {
		if prob < 0 || math.IsNaN(prob) {
			return fmt.Errorf("%w: %v %v of state %v is %v", ErrNotNormalized, what, key, name, prob)
		}
		*total += prob
	}
	return nil
}

// Check verifies that the transitions and the emissions of the state
// are probability distributions.
func (state *State) Check() error {
	var total float64
	if err := checkProbs("transition to", state.Name, state.Transitions, &total); err != nil {
		return err
	}
	if !bins.IsNormed(total) {
		return fmt.Errorf("%w: transitions of state %v sum to %v", ErrNotNormalized, state.Name, total)
	}
	switch state.Kind() {
	case SingleEmission:
		total = 0
		if err := checkProbs("emission", state.Name, state.Emissions.Probs, &total); err != nil {
			return err
		}
	case PairedEmission:
		total = 0
		for _, row := range state.PairEmissions.Probs {
			if err := checkProbs("pair emission", state.Name, row, &total); err != nil {
				return err
			}
		}
	default:
		return nil
	}
	if !bins.IsNormed(total) {
		return fmt.Errorf("%w: emissions of state %v sum to %v", ErrNotNormalized, state.Name, total)
	}
	return nil
}

// An HMM is the model of one germline gene.
type HMM struct {
	Name   string                 `yaml:"name"`
	Tracks map[string][]string    `yaml:"tracks"`
	States []*State               `yaml:"states"`
	Extras map[string]interface{} `yaml:"extras,omitempty"`
}

// NewHMM allocates a model over the given tracks.
func NewHMM(name string, tracks ...Track) *HMM {
	hmm := &HMM{Name: name, Tracks: make(map[string][]string, len(tracks)), Extras: make(map[string]interface{})}
	for _, track := range tracks {
		hmm.Tracks[track.Name] = track.Letters
	}
	return hmm
}

// AddState checks the state and appends it to the model.
func (hmm *HMM) AddState(state *State) error {
	if err := state.Check(); err != nil {
		return fmt.Errorf("%v: %w", hmm.Name, err)
	}
	hmm.States = append(hmm.States, state)
	return nil
}

// State returns the named state, or nil.
func (hmm *HMM) State(name string) *State {
	for _, state := range hmm.States {
		if state.Name == name {
			return state
		}
	}
	return nil
}

// Filename returns the name of the file that stores the model.
func (hmm *HMM) Filename() string {
	return hmm.Name + ".yaml"
}

// Write stores the model in the given directory.
func (hmm *HMM) Write(dir string) (err error) {
	f, err := os.Create(filepath.Join(dir, hmm.Filename()))
	if err != nil {
		return err
	}
	defer internal.Close(f, &err)
	encoder := yaml.NewEncoder(f)
	encoder.SetIndent(2)
	if err = encoder.Encode(hmm); err != nil {
		return fmt.Errorf("error writing model %v: %w", hmm.Name, err)
	}
	return encoder.Close()
}

// ReadHMM loads a model and checks every state.
func ReadHMM(filename string) (hmm *HMM, err error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer internal.Close(f, &err)
	hmm = new(HMM)
	if err = yaml.NewDecoder(f).Decode(hmm); err != nil {
		return nil, fmt.Errorf("error reading %v: %w", filename, err)
	}
	for _, state := range hmm.States {
		if state.Transitions == nil {
			state.Transitions = make(map[string]float64)
		}
		if err = state.Check(); err != nil {
			return nil, fmt.Errorf("%v: %w", filename, err)
		}
	}
	return hmm, nil
}
