// Package dice implements the NetLink dice formulas: NdS+M rolls drawn from a
// cryptographic source, plus a seeded variant for deterministic replays.
package dice

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/zenite-os/zenite/internal/platform/random"
)

const (
	maxSides    = 1000
	maxCount    = 100
	maxModifier = 1000
)

// ErrInvalidFormula indicates a formula could not be parsed.
var ErrInvalidFormula = errors.New("dice formula must look like D20, 2D6 or D20+3")

// ErrMissingDice indicates a roll request had no dice specified.
var ErrMissingDice = errors.New("at least one die must be provided")

// ErrInvalidDiceSpec indicates a die specification has invalid fields.
var ErrInvalidDiceSpec = errors.New("dice must have positive sides and count")

// Formula is a parsed "NdS+M" expression.
type Formula struct {
	Count    int
	Sides    int
	Modifier int
}

// String renders the canonical form, e.g. "D20+3" or "2D6-1".
func (f Formula) String() string {
	var b strings.Builder
	if f.Count > 1 {
		b.WriteString(strconv.Itoa(f.Count))
	}
	b.WriteString("D")
	b.WriteString(strconv.Itoa(f.Sides))
	switch {
	case f.Modifier > 0:
		b.WriteString("+")
		b.WriteString(strconv.Itoa(f.Modifier))
	case f.Modifier < 0:
		b.WriteString(strconv.Itoa(f.Modifier))
	}
	return b.String()
}

// ParseFormula parses expressions like "D20", "d20+3", "2D6-1".
func ParseFormula(raw string) (Formula, error) {
	expr := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
	dIdx := strings.Index(expr, "D")
	if dIdx < 0 {
		return Formula{}, ErrInvalidFormula
	}

	formula := Formula{Count: 1}
	if dIdx > 0 {
		count, err := strconv.Atoi(expr[:dIdx])
		if err != nil || count < 1 || count > maxCount {
			return Formula{}, ErrInvalidFormula
		}
		formula.Count = count
	}

	rest := expr[dIdx+1:]
	sidesPart := rest
	modPart := ""
	if signIdx := strings.IndexAny(rest, "+-"); signIdx >= 0 {
		sidesPart = rest[:signIdx]
		modPart = rest[signIdx:]
	}

	sides, err := strconv.Atoi(sidesPart)
	if err != nil || sides < 2 || sides > maxSides {
		return Formula{}, ErrInvalidFormula
	}
	formula.Sides = sides

	if modPart != "" {
		if len(modPart) < 2 {
			return Formula{}, ErrInvalidFormula
		}
		modifier, err := strconv.Atoi(modPart)
		if err != nil || modifier > maxModifier || modifier < -maxModifier {
			return Formula{}, ErrInvalidFormula
		}
		formula.Modifier = modifier
	}
	return formula, nil
}

// Result is one evaluated formula.
type Result struct {
	Formula Formula
	Dice    []int
	// Natural is the sum of the dice before the modifier.
	Natural int
	Total   int
}

// IsCritical reports a single-die roll that landed on its maximum face.
func (r Result) IsCritical() bool {
	return len(r.Dice) == 1 && r.Dice[0] == r.Formula.Sides
}

// IsFumble reports a single-die roll that landed on 1.
func (r Result) IsFumble() bool {
	return len(r.Dice) == 1 && r.Dice[0] == 1
}

// Roll evaluates formula, drawing each die uniformly from [1, sides].
func Roll(formula Formula, source random.Source) (Result, error) {
	if formula.Count < 1 || formula.Sides < 1 {
		return Result{}, ErrInvalidDiceSpec
	}
	if source == nil {
		source = random.CryptoSource{}
	}

	result := Result{Formula: formula, Dice: make([]int, formula.Count)}
	for i := range result.Dice {
		value, err := source.IntN(formula.Sides)
		if err != nil {
			return Result{}, fmt.Errorf("draw d%d: %w", formula.Sides, err)
		}
		result.Dice[i] = value + 1
		result.Natural += value + 1
	}
	result.Total = result.Natural + formula.Modifier
	return result, nil
}

// RollString parses and rolls in one step.
func RollString(raw string, source random.Source) (Result, error) {
	formula, err := ParseFormula(raw)
	if err != nil {
		return Result{}, err
	}
	return Roll(formula, source)
}

// DiceSpec describes a die to roll and how many times to roll it.
type DiceSpec struct {
	Sides int
	Count int
}

// DieRoll captures the results for a single dice spec.
type DieRoll struct {
	Sides   int
	Results []int
	Total   int
}

// RollRequest describes a seeded request to roll one or more dice.
type RollRequest struct {
	Dice []DiceSpec
	Seed int64
}

// RollResult captures the results from rolling multiple dice.
type RollResult struct {
	Rolls []DieRoll
	Total int
}

// RollDice rolls dice deterministically with respect to Seed.
//
// Specs are processed in slice order and each DieRoll.Total is the sum of its
// Results; RollResult.Total sums every die in the request. Used to replay a
// stored roll from its seed.
func RollDice(request RollRequest) (RollResult, error) {
	if len(request.Dice) == 0 {
		return RollResult{}, ErrMissingDice
	}

	rng := rand.New(rand.NewSource(request.Seed))
	rolls := make([]DieRoll, 0, len(request.Dice))
	total := 0

	for _, spec := range request.Dice {
		if spec.Sides <= 0 || spec.Count <= 0 {
			return RollResult{}, ErrInvalidDiceSpec
		}

		results := make([]int, spec.Count)
		rollTotal := 0
		for i := 0; i < spec.Count; i++ {
			value := rng.Intn(spec.Sides) + 1
			results[i] = value
			rollTotal += value
		}

		rolls = append(rolls, DieRoll{
			Sides:   spec.Sides,
			Results: results,
			Total:   rollTotal,
		})
		total += rollTotal
	}

	return RollResult{
		Rolls: rolls,
		Total: total,
	}, nil
}
