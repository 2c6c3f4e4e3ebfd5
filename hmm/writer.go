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
	"log"
	"strconv"

	"github.com/exascience/vdjprep/bins"
	"github.com/exascience/vdjprep/params"
)

var (
	// ErrUnreachable is returned when no internal state of a gene can
	// be entered.
	ErrUnreachable = errors.New("hmm: no reachable internal state")

	// ErrDegenerateInsertion is returned when an insertion length
	// distribution puts all or none of its mass on zero-length
	// insertions.
	ErrDegenerateInsertion = errors.New("hmm: degenerate insertion distribution")
)

// Constants for building models.
const (
	// NMaxToInterpolate is the total count of two neighboring full bins
	// below which empty bins in between are interpolated.
	NMaxToInterpolate = 20

	// DefaultMinObservations is the default number of observations of
	// a gene below which parameters are pooled over replacement genes.
	DefaultMinObservations = 20
)

// WriterOptions configure how models are built.
type WriterOptions struct {
	// AllowUnphysicalInsertions adds fv insertions to v genes and jf
	// insertions to j genes.
	AllowUnphysicalInsertions bool

	// MinObservations is the number of observations of a gene below
	// which erosion, insertion and mutation parameters are pooled over
	// replacement genes.
	MinObservations int

	// InsertionBaseContent uses the observed base content of
	// insertions rather than a uniform one.
	InsertionBaseContent bool

	// JointEmission emits pairs of bases with a joint distribution.
	JointEmission bool

	// Naive builds models without mutations.
	Naive bool

	Debug bool
}

// DefaultWriterOptions returns the default options.
func DefaultWriterOptions() WriterOptions {
	return WriterOptions{
		MinObservations:      DefaultMinObservations,
		InsertionBaseContent: true,
	}
}

// A Writer builds the model for one gene.
type Writer struct {
	options  WriterOptions
	gene     string
	saniname string
	region   params.Region
	germline string

	// left insertion first, then jf if any
	insertions       []string
	erosionProbs     map[string]bins.Distribution
	insertionProbs   map[string]bins.Distribution
	insertionContent map[string]map[string]float64
	muteFreqs        *params.MuteFreqs

	// first internal position with a chance of being entered
	smallestEntryIndex int

	hmm *HMM
}

// NewWriter reads the parameters of the given gene from dir. If the
// gene was observed fewer than options.MinObservations times,
// parameters are pooled over its replacement genes.
func NewWriter(dir *params.Dir, gene, germline string, options WriterOptions) (*Writer, error) {
	region, err := params.GeneRegion(gene)
	if err != nil {
		return nil, err
	}
	if germline == "" {
		return nil, fmt.Errorf("empty germline sequence for %v", gene)
	}
	w := &Writer{
		options:            options,
		gene:               gene,
		saniname:           params.SanitizeName(gene),
		region:             region,
		germline:           germline,
		erosionProbs:       make(map[string]bins.Distribution),
		insertionProbs:     make(map[string]bins.Distribution),
		insertionContent:   make(map[string]map[string]float64),
		smallestEntryIndex: -1,
	}
	switch region {
	case params.V:
		if options.AllowUnphysicalInsertions {
			w.insertions = append(w.insertions, "fv")
		}
	case params.D:
		w.insertions = append(w.insertions, "vd")
	case params.J:
		w.insertions = append(w.insertions, "dj")
		if options.AllowUnphysicalInsertions {
			w.insertions = append(w.insertions, "jf")
		}
	}

	observations, err := dir.GeneCount(gene)
	if err != nil {
		return nil, err
	}
	approvedGenes := []string{gene}
	if observations < options.MinObservations {
		if options.Debug {
			log.Printf("only saw %v %v times, using info from other genes\n", gene, observations)
		}
		if approvedGenes, err = dir.ReplacementGenes(gene, options.MinObservations, options.Debug); err != nil {
			return nil, err
		}
	}
	if err = w.readErosionInfo(dir, approvedGenes); err != nil {
		return nil, err
	}
	if err = w.readInsertionInfo(dir, approvedGenes); err != nil {
		return nil, err
	}
	if !options.Naive {
		if w.muteFreqs, err = dir.MuteFreqs(gene, approvedGenes); err != nil {
			return nil, err
		}
	}

	w.hmm = NewHMM(w.saniname, NukesTrack)
	geneProb, err := dir.GeneProb(gene)
	if err != nil {
		return nil, err
	}
	if geneProb < bins.EmptyEps {
		geneProb = bins.EmptyEps
	}
	w.hmm.Extras["gene_prob"] = geneProb
	return w, nil
}

func (w *Writer) readErosionInfo(dir *params.Dir, approvedGenes []string) error {
	erosions := append(append([]string(nil), params.RealErosions...), params.EffectiveErosions...)
	for _, erosion := range erosions {
		if erosion[:1] != string(w.region) {
			continue
		}
		// erosions too long for this gene may have been fine for a replacement gene
		probs, genesUsed, err := dir.Counts(erosion+"_del", w.region, approvedGenes, len(w.germline))
		if err != nil {
			return fmt.Errorf("erosion %v of %v: %w", erosion, w.gene, err)
		}
		nMax := NMaxToInterpolate
		if !params.IsRealErosion(erosion) {
			nMax = bins.AlwaysInterpolate
		}
		if err = probs.Interpolate(nMax, len(w.germline), w.options.Debug); err != nil {
			return fmt.Errorf("erosion %v of %v: %w", erosion, w.gene, err)
		}
		if err = probs.Normalize(); err != nil {
			return fmt.Errorf("erosion %v of %v: %w", erosion, w.gene, err)
		}
		if w.options.Debug && len(genesUsed) > 1 {
			log.Printf("%v erosions of %v use %v genes\n", erosion, w.gene, len(genesUsed))
		}
		w.erosionProbs[erosion] = probs
	}
	return nil
}

func (w *Writer) readInsertionInfo(dir *params.Dir, approvedGenes []string) error {
	for _, insertion := range w.insertions {
		probs, genesUsed, err := dir.Counts(insertion+"_insertion", w.region, approvedGenes, -1)
		if err != nil {
			return fmt.Errorf("insertion %v of %v: %w", insertion, w.gene, err)
		}
		if err = probs.Interpolate(NMaxToInterpolate, bins.NoTail, w.options.Debug); err != nil {
			return fmt.Errorf("insertion %v of %v: %w", insertion, w.gene, err)
		}
		if _, ok := probs[0]; !ok || len(probs) < 2 {
			log.Printf("Warning: adding pseudocounts to %v insertion probs of %v.\n", insertion, w.gene)
			probs[0] = 1
			probs[1] = 1
		}
		if err = probs.Normalize(); err != nil {
			return fmt.Errorf("insertion %v of %v: %w", insertion, w.gene, err)
		}
		if p0, ok := probs[0]; !ok || p0 >= 1 {
			return fmt.Errorf("%w: %v insertion of %v (%v)", ErrDegenerateInsertion, insertion, w.gene, probs)
		}
		if w.options.Debug && len(genesUsed) > 1 {
			log.Printf("%v insertions of %v use %v genes\n", insertion, w.gene, len(genesUsed))
		}
		w.insertionProbs[insertion] = probs

		content := params.UniformContent()
		if w.options.InsertionBaseContent {
			if content, err = dir.InsertionContent(insertion); err != nil {
				return fmt.Errorf("insertion %v of %v: %w", insertion, w.gene, err)
			}
		}
		w.insertionContent[insertion] = content
	}
	return nil
}

// Build adds all states to the model and returns it.
func (w *Writer) Build() (*HMM, error) {
	if len(w.hmm.States) > 0 {
		return w.hmm, nil
	}
	if err := w.addInitState(); err != nil {
		return nil, err
	}
	for _, insertion := range w.insertions {
		if insertion == "jf" {
			continue
		}
		if err := w.addLeftInsertStates(insertion); err != nil {
			return nil, err
		}
	}
	if w.smallestEntryIndex < 0 {
		return nil, fmt.Errorf("%w in %v", ErrUnreachable, w.gene)
	}
	for inuke := w.smallestEntryIndex; inuke < len(w.germline); inuke++ {
		if err := w.addInternalState(inuke); err != nil {
			return nil, err
		}
	}
	if w.hasRightInsertion() {
		if err := w.addRightInsertState(); err != nil {
			return nil, err
		}
	}
	return w.hmm, nil
}

// Write builds the model and stores it in outdir.
func (w *Writer) Write(outdir string) error {
	hmm, err := w.Build()
	if err != nil {
		return err
	}
	return hmm.Write(outdir)
}

func (w *Writer) hasRightInsertion() bool {
	return w.region == params.J && w.options.AllowUnphysicalInsertions
}

func (w *Writer) internalStateName(inuke int) string {
	return w.saniname + "_" + strconv.Itoa(inuke)
}

func (w *Writer) addInitState() error {
	state := NewState(InitState)
	var insertion string
	if len(w.insertions) > 0 {
		insertion = w.insertions[0]
	}
	if err := w.addRegionEntryTransitions(state, insertion); err != nil {
		return err
	}
	return w.hmm.AddState(state)
}

func (w *Writer) addLeftInsertStates(insertion string) error {
	for _, nuke := range params.Nukes {
		state := NewState(InsertLeftPrefix + nuke)
		if err := w.addRegionEntryTransitions(state, insertion); err != nil {
			return err
		}
		if err := w.addEmissions(state, insertion, -1, nuke); err != nil {
			return err
		}
		if err := w.hmm.AddState(state); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) addInternalState(inuke int) error {
	germlineNuke := w.germline[inuke : inuke+1]
	switch germlineNuke {
	case "N", "Y":
		log.Printf("Warning: replacing %v with A at position %v of %v.\n", germlineNuke, inuke, w.gene)
		germlineNuke = "A"
	case "A", "C", "G", "T":
	default:
		return fmt.Errorf("%w: germline base %q at position %v of %v", ErrBadEmission, germlineNuke, inuke, w.gene)
	}

	state := NewState(w.internalStateName(inuke))
	state.Extras = map[string]interface{}{"germline": germlineNuke}

	exitProb := w.exitProbability(inuke)
	distanceToEnd := len(w.germline) - inuke - 1
	if distanceToEnd > 0 {
		if err := state.AddTransition(w.internalStateName(inuke+1), 1-exitProb); err != nil {
			return err
		}
	}
	if exitProb >= bins.EmptyEps || distanceToEnd == 0 {
		if err := w.addRegionExitTransitions(state, exitProb); err != nil {
			return err
		}
	}
	if err := w.addEmissions(state, "", inuke, germlineNuke); err != nil {
		return err
	}
	return w.hmm.AddState(state)
}

func (w *Writer) addRightInsertState() error {
	state := NewState(InsertRightState)
	selfProb := w.insertSelfTransitionProb("jf")
	if err := state.AddTransition(InsertRightState, selfProb); err != nil {
		return err
	}
	if err := state.AddTransition(EndState, 1-selfProb); err != nil {
		return err
	}
	if err := w.addEmissions(state, "jf", -1, ""); err != nil {
		return err
	}
	return w.hmm.AddState(state)
}

// insertSelfTransitionProb treats insertion lengths as geometric when
// the mean length exceeds 1, and otherwise uses the fraction of
// non-zero insertions.
func (w *Writer) insertSelfTransitionProb(insertion string) float64 {
	probs := w.insertionProbs[insertion]
	var inverseLength float64
	if mean := probs.Mean(); mean > 0 {
		inverseLength = 1 / mean
	}
	if inverseLength < 1 {
		return 1 - inverseLength
	}
	var nonZero float64
	for _, length := range probs.Bins() {
		if length != 0 {
			nonZero += probs[length]
		}
	}
	selfProb := nonZero / (nonZero + probs[0])
	if w.options.Debug && insertion != "fv" && insertion != "jf" {
		log.Printf("using short insertion self-transition probability %v for %v insertion of %v\n", selfProb, insertion, w.gene)
	}
	return selfProb
}

// addRegionEntryTransitions adds the transitions from init or a left
// insertion state into the left insertion states and the internal
// states.
func (w *Writer) addRegionEntryTransitions(state *State, insertion string) error {
	var entryProb float64
	switch {
	case state.Name == InitState && insertion == "":
		entryProb = 1
	case state.Name == InitState:
		entryProb = w.insertionProbs[insertion][0]
	default:
		entryProb = 1 - w.insertSelfTransitionProb(insertion)
	}

	if insertion != "" {
		content := w.insertionContent[insertion]
		for _, nuke := range params.Nukes {
			if err := state.AddTransition(InsertLeftPrefix+nuke, (1-entryProb)*content[nuke]); err != nil {
				return err
			}
		}
	}

	erosion := w.erosionProbs[string(w.region)+"_5p"]
	var total float64
	for inuke := 0; inuke < len(w.germline); inuke++ {
		prob, ok := erosion[inuke]
		if !ok {
			continue
		}
		total += prob * entryProb
		if entryProb == 0 {
			if state.Name != InitState {
				return fmt.Errorf("%w: state %v of %v cannot enter the region", ErrUnreachable, state.Name, w.gene)
			}
			continue
		}
		if err := state.AddTransition(w.internalStateName(inuke), prob*entryProb); err != nil {
			return err
		}
		if w.smallestEntryIndex < 0 || inuke < w.smallestEntryIndex {
			w.smallestEntryIndex = inuke
		}
	}
	if entryProb != 0 && !bins.IsNormed(total/entryProb) {
		return fmt.Errorf("%w: region entry from %v of %v sums to %v", ErrNotNormalized, state.Name, w.gene, total/entryProb)
	}
	return nil
}

func (w *Writer) addRegionExitTransitions(state *State, exitProb float64) error {
	var nonZeroInsertionProb float64
	if w.hasRightInsertion() {
		nonZeroInsertionProb = 1 - w.insertionProbs["jf"][0]
		if err := state.AddTransition(InsertRightState, nonZeroInsertionProb*exitProb); err != nil {
			return err
		}
	}
	return state.AddTransition(EndState, (1-nonZeroInsertionProb)*exitProb)
}

// exitProbability is the probability that all bases to the right of
// inuke are eroded.
func (w *Writer) exitProbability(inuke int) float64 {
	distanceToEnd := len(w.germline) - inuke - 1
	if distanceToEnd == 0 {
		return 1
	}
	if prob := w.erosionProbs[string(w.region)+"_3p"][distanceToEnd]; prob > bins.EmptyEps {
		return prob
	}
	return 0
}

// muteFreq returns the mutation frequency of a germline position, or
// the gene-wide mean for a negative position.
func (w *Writer) muteFreq(inuke int) float64 {
	if w.muteFreqs == nil {
		return bins.EmptyEps
	}
	freq := w.muteFreqs.Overall
	if inuke >= 0 {
		freq = w.muteFreqs.At(inuke)
	}
	switch {
	case freq < bins.EmptyEps:
		return bins.EmptyEps
	case freq > 1-bins.EmptyEps:
		return 1 - bins.EmptyEps
	default:
		return freq
	}
}

func singleEmissionProb(nuke, germlineNuke string, muteFreq float64) float64 {
	if nuke == germlineNuke {
		return 1 - muteFreq
	}
	return muteFreq / 3
}

// jointEmissionProb is a first-order approximation of the probability
// that two sequences show nuke1 and nuke2 at a position with the given
// germline base.
func jointEmissionProb(nuke1, nuke2, germlineNuke string, muteFreq float64) float64 {
	cryptic := (2 - muteFreq) / (6*muteFreq + 9)
	switch {
	case nuke1 == germlineNuke && nuke2 == germlineNuke:
		return (1 - muteFreq) * (1 - muteFreq)
	case nuke1 == nuke2, nuke1 == germlineNuke, nuke2 == germlineNuke:
		return muteFreq * cryptic
	default:
		return muteFreq * muteFreq * cryptic
	}
}

// addEmissions adds the emission of an insertion state (when insertion
// is not empty) or of the internal state at inuke.
func (w *Writer) addEmissions(state *State, insertion string, inuke int, germlineNuke string) error {
	var emit func(nuke string) float64
	var emitPair func(nuke1, nuke2 string) float64
	switch {
	case insertion != "" && germlineNuke == "":
		content := w.insertionContent[insertion]
		emit = func(nuke string) float64 { return content[nuke] }
		emitPair = func(nuke1, nuke2 string) float64 { return content[nuke1] * content[nuke2] }
	case insertion != "":
		muteFreq := w.muteFreq(-1)
		emit = func(nuke string) float64 { return singleEmissionProb(nuke, germlineNuke, muteFreq) }
		emitPair = func(nuke1, nuke2 string) float64 {
			return singleEmissionProb(nuke1, germlineNuke, muteFreq) * singleEmissionProb(nuke2, germlineNuke, muteFreq)
		}
	default:
		muteFreq := w.muteFreq(inuke)
		emit = func(nuke string) float64 { return singleEmissionProb(nuke, germlineNuke, muteFreq) }
		emitPair = func(nuke1, nuke2 string) float64 { return jointEmissionProb(nuke1, nuke2, germlineNuke, muteFreq) }
	}

	if w.options.JointEmission {
		probs := make(map[string]map[string]float64, len(params.Nukes))
		for _, nuke1 := range params.Nukes {
			probs[nuke1] = make(map[string]float64, len(params.Nukes))
			for _, nuke2 := range params.Nukes {
				probs[nuke1][nuke2] = emitPair(nuke1, nuke2)
			}
		}
		return state.AddPairEmission(NukesTrack, probs)
	}
	probs := make(map[string]float64, len(params.Nukes))
	for _, nuke := range params.Nukes {
		probs[nuke] = emit(nuke)
	}
	return state.AddEmission(NukesTrack, probs)
}
