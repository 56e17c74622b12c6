// Package record is the data model of a published election record: the
// parameters, the trustee commitments, the encrypted cast ballots and the
// decryptions of the tallies and spoiled ballots, along with every proof.
//
// Everything here is plain data. Nothing is trusted and nothing is checked
// beyond the shape needed to decode it; that is the verifier's job.
package record

import (
	big "github.com/ncw/gmp"

	"github.com/thechriswalker/egverify/crypto/elgamal"
	"github.com/thechriswalker/egverify/crypto/hashchain"
)

// Parameters are the election constants the base hash commits to.
type Parameters struct {
	Date        string
	Location    string
	NumTrustees int
	Threshold   int
	Prime       *big.Int
	Generator   *big.Int
}

// TrusteeCoefficient is the commitment K_{i,j} = g^{a_{i,j}} to one
// polynomial coefficient and the proof the trustee knows a_{i,j}.
type TrusteeCoefficient struct {
	PublicKey *big.Int
	Proof     *elgamal.SchnorrProof
}

// TrusteePublicKey is one trustee's full set of k coefficient commitments.
// Coefficients[0] is the trustee's public key.
type TrusteePublicKey struct {
	Coefficients []*TrusteeCoefficient
}

// Principal is K_{i,0}, or nil when the trustee published nothing.
func (t *TrusteePublicKey) Principal() *big.Int {
	if t == nil || len(t.Coefficients) == 0 || t.Coefficients[0] == nil {
		return nil
	}
	return t.Coefficients[0].PublicKey
}

// Commitments lists the coefficient public keys in order.
func (t *TrusteePublicKey) Commitments() []*big.Int {
	out := make([]*big.Int, len(t.Coefficients))
	for i, c := range t.Coefficients {
		if c != nil {
			out[i] = c.PublicKey
		}
	}
	return out
}

// BallotInfo is the device metadata of a cast or spoiled ballot.
type BallotInfo struct {
	Date       string
	DeviceInfo string
	Time       string
	Tracker    string
}

// CastSelection is one encrypted option and its zero-or-one proof.
type CastSelection struct {
	Message *elgamal.CipherText
	Proof   *elgamal.DisjunctiveProof
}

// CastContest holds the selections of one contest on a ballot and the
// proof that exactly MaxSelections of them are ones.
type CastContest struct {
	Selections         []*CastSelection
	MaxSelections      int
	NumSelectionsProof *elgamal.ChaumPedersenProof
}

// Messages returns the selection ciphertexts in order.
func (c *CastContest) Messages() []*elgamal.CipherText {
	out := make([]*elgamal.CipherText, len(c.Selections))
	for i, s := range c.Selections {
		if s != nil {
			out[i] = s.Message
		}
	}
	return out
}

type CastBallot struct {
	Info     BallotInfo
	Contests []*CastContest
}

// Fragment is trustee TrusteeIndex's piece M_{i,j} of a missing trustee's
// decryption share, with the Lagrange weight it claims and its proof.
type Fragment struct {
	Fragment            *big.Int
	LagrangeCoefficient *big.Int
	Proof               *elgamal.ChaumPedersenProof
	TrusteeIndex        int
}

// Share is one trustee's share M_i of a decryption. A present trustee
// proves it directly, an absent trustee's share is rebuilt from fragments.
type Share struct {
	Share     *big.Int
	Proof     *elgamal.ChaumPedersenProof
	Fragments []*Fragment
}

// Recovered reports whether this share was rebuilt from fragments.
func (s *Share) Recovered() bool {
	return len(s.Fragments) > 0
}

// Decryption is the decryption of a single encrypted value, either one
// option's tally or one selection of a spoiled ballot.
type Decryption struct {
	Cleartext *big.Int
	// Decrypted is the group element M such that B = M * g^cleartext.
	Decrypted *big.Int
	Encrypted *elgamal.CipherText
	Shares    []*Share
}

type SpoiledBallot struct {
	Info     BallotInfo
	Contests [][]*Decryption
}

// ContestDescription is an entry in the optional manifest that fixes the
// shape of every ballot.
type ContestDescription struct {
	ID            string
	NumSelections int
	MaxSelections int
}

// Election is the complete record as published.
type Election struct {
	Parameters        Parameters
	BaseHash          *big.Int
	TrusteePublicKeys []*TrusteePublicKey
	JointPublicKey    *big.Int
	ExtendedBaseHash  *big.Int
	CastBallots       []*CastBallot
	ContestTallies    [][]*Decryption
	SpoiledBallots    []*SpoiledBallot
	Manifest          []ContestDescription
}

// HashConfig is the part of the record the base hash is computed over.
func (e *Election) HashConfig() *hashchain.Config {
	c := &hashchain.Config{
		Prime:       e.Parameters.Prime,
		Generator:   e.Parameters.Generator,
		NumTrustees: e.Parameters.NumTrustees,
		Threshold:   e.Parameters.Threshold,
		Date:        e.Parameters.Date,
		Location:    e.Parameters.Location,
	}
	for _, m := range e.Manifest {
		c.Contests = append(c.Contests, hashchain.Contest{
			ID:            m.ID,
			NumSelections: m.NumSelections,
			MaxSelections: m.MaxSelections,
		})
	}
	return c
}

// Coefficients lists every trustee's commitments, in (trustee, coefficient)
// order, as the extended base hash consumes them.
func (e *Election) Coefficients() [][]*big.Int {
	out := make([][]*big.Int, len(e.TrusteePublicKeys))
	for i, t := range e.TrusteePublicKeys {
		if t != nil {
			out[i] = t.Commitments()
		}
	}
	return out
}
