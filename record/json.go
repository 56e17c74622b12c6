package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	big "github.com/ncw/gmp"

	"github.com/thechriswalker/egverify/crypto"
	"github.com/thechriswalker/egverify/crypto/elgamal"
)

// The published format carries every integer, counts included, as a
// decimal string. An ElGamal pair is {public_key: a, ciphertext: b} and a
// Chaum-Pedersen commitment uses the same shape for (A, B).
//
// Decoding is two step: encoding/json fills the wire structs below, then
// a decoder converts them, remembering the path of the first bad value.

// ErrMalformed is wrapped by every decoding failure.
var ErrMalformed = errors.New("malformed election record")

type wireParameters struct {
	Date        string `json:"date"`
	Location    string `json:"location"`
	NumTrustees string `json:"num_trustees"`
	Threshold   string `json:"threshold"`
	Prime       string `json:"prime"`
	Generator   string `json:"generator"`
}

type wireSchnorr struct {
	Commitment string `json:"commitment"`
	Challenge  string `json:"challenge"`
	Response   string `json:"response"`
}

type wireMessage struct {
	PublicKey  string `json:"public_key"`
	Ciphertext string `json:"ciphertext"`
}

type wireChaumPedersen struct {
	Commitment wireMessage `json:"commitment"`
	Challenge  string      `json:"challenge"`
	Response   string      `json:"response"`
}

type wireCoefficient struct {
	PublicKey string       `json:"public_key"`
	Proof     *wireSchnorr `json:"proof"`
}

type wireBallotInfo struct {
	Date       string `json:"date"`
	DeviceInfo string `json:"device_info"`
	Time       string `json:"time"`
	Tracker    string `json:"tracker"`
}

type wireSelection struct {
	Message   *wireMessage       `json:"message"`
	ZeroProof *wireChaumPedersen `json:"zero_proof"`
	OneProof  *wireChaumPedersen `json:"one_proof"`
}

type wireContest struct {
	Selections         []*wireSelection   `json:"selections"`
	MaxSelections      string             `json:"max_selections"`
	NumSelectionsProof *wireChaumPedersen `json:"num_selections_proof"`
}

type wireCastBallot struct {
	Info     wireBallotInfo `json:"ballot_info"`
	Contests []*wireContest `json:"contests"`
}

type wireFragment struct {
	Fragment            string             `json:"fragment"`
	LagrangeCoefficient string             `json:"lagrange_coefficient"`
	Proof               *wireChaumPedersen `json:"proof"`
	TrusteeIndex        string             `json:"trustee_index"`
}

type wireShare struct {
	Fragments []*wireFragment    `json:"fragments,omitempty"`
	Proof     *wireChaumPedersen `json:"proof,omitempty"`
	Share     string             `json:"share"`
}

type wireTally struct {
	Cleartext      string       `json:"cleartext"`
	DecryptedTally string       `json:"decrypted_tally"`
	EncryptedTally *wireMessage `json:"encrypted_tally"`
	Shares         []*wireShare `json:"shares"`
}

type wireSpoiledSelection struct {
	Cleartext        string       `json:"cleartext"`
	DecryptedMessage string       `json:"decrypted_message"`
	EncryptedMessage *wireMessage `json:"encrypted_message"`
	Shares           []*wireShare `json:"shares"`
}

type wireSpoiledBallot struct {
	Info     wireBallotInfo            `json:"ballot_info"`
	Contests [][]*wireSpoiledSelection `json:"contests"`
}

type wireManifestContest struct {
	ID            string `json:"id"`
	NumSelections string `json:"num_selections"`
	MaxSelections string `json:"max_selections"`
}

type wireElection struct {
	Parameters        *wireParameters        `json:"parameters"`
	BaseHash          string                 `json:"base_hash"`
	TrusteePublicKeys [][]*wireCoefficient   `json:"trustee_public_keys"`
	JointPublicKey    string                 `json:"joint_public_key"`
	ExtendedBaseHash  string                 `json:"extended_base_hash"`
	CastBallots       []*wireCastBallot      `json:"cast_ballots"`
	ContestTallies    [][]*wireTally         `json:"contest_tallies"`
	SpoiledBallots    []*wireSpoiledBallot   `json:"spoiled_ballots"`
	Manifest          []*wireManifestContest `json:"manifest,omitempty"`
}

// Load reads and decodes the record at path.
func Load(path string) (*Election, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a JSON election record.
func Decode(r io.Reader) (*Election, error) {
	w := &wireElection{}
	if err := json.NewDecoder(r).Decode(w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	d := &decoder{}
	e := d.election(w)
	if d.err != nil {
		return nil, d.err
	}
	return e, nil
}

// decoder converts wire values, keeping the first failure.
type decoder struct {
	err error
}

func (d *decoder) fail(path, format string, args ...interface{}) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s: %s", ErrMalformed, path, fmt.Sprintf(format, args...))
	}
}

func (d *decoder) int(path, s string) *big.Int {
	if d.err != nil {
		return nil
	}
	n, err := crypto.BigIntFromJSON(s)
	if err != nil {
		d.fail(path, "%v", err)
		return nil
	}
	return n
}

func (d *decoder) count(path, s string) int {
	n := d.int(path, s)
	if n == nil {
		return 0
	}
	if n.Cmp(big.NewInt(math.MaxInt32)) > 0 {
		d.fail(path, "count %s too large", s)
		return 0
	}
	return int(n.Int64())
}

func (d *decoder) message(path string, m *wireMessage) *elgamal.CipherText {
	if m == nil {
		d.fail(path, "missing")
		return nil
	}
	return &elgamal.CipherText{
		A: d.int(path+".public_key", m.PublicKey),
		B: d.int(path+".ciphertext", m.Ciphertext),
	}
}

func (d *decoder) schnorr(path string, p *wireSchnorr) *elgamal.SchnorrProof {
	if p == nil {
		d.fail(path, "missing")
		return nil
	}
	return &elgamal.SchnorrProof{
		K: d.int(path+".commitment", p.Commitment),
		C: d.int(path+".challenge", p.Challenge),
		U: d.int(path+".response", p.Response),
	}
}

func (d *decoder) chaumPedersen(path string, p *wireChaumPedersen) *elgamal.ChaumPedersenProof {
	if p == nil {
		d.fail(path, "missing")
		return nil
	}
	return &elgamal.ChaumPedersenProof{
		A: d.int(path+".commitment.public_key", p.Commitment.PublicKey),
		B: d.int(path+".commitment.ciphertext", p.Commitment.Ciphertext),
		C: d.int(path+".challenge", p.Challenge),
		U: d.int(path+".response", p.Response),
	}
}

func (d *decoder) info(w wireBallotInfo) BallotInfo {
	return BallotInfo{Date: w.Date, DeviceInfo: w.DeviceInfo, Time: w.Time, Tracker: w.Tracker}
}

func (d *decoder) shares(path string, ws []*wireShare) []*Share {
	out := make([]*Share, len(ws))
	for i, w := range ws {
		p := fmt.Sprintf("%s[%d]", path, i)
		if w == nil {
			d.fail(p, "missing")
			return nil
		}
		s := &Share{Share: d.int(p+".share", w.Share)}
		if w.Proof != nil {
			s.Proof = d.chaumPedersen(p+".proof", w.Proof)
		}
		for j, f := range w.Fragments {
			fp := fmt.Sprintf("%s.fragments[%d]", p, j)
			if f == nil {
				d.fail(fp, "missing")
				return nil
			}
			s.Fragments = append(s.Fragments, &Fragment{
				Fragment:            d.int(fp+".fragment", f.Fragment),
				LagrangeCoefficient: d.int(fp+".lagrange_coefficient", f.LagrangeCoefficient),
				Proof:               d.chaumPedersen(fp+".proof", f.Proof),
				TrusteeIndex:        d.count(fp+".trustee_index", f.TrusteeIndex),
			})
		}
		if s.Proof == nil && len(s.Fragments) == 0 {
			d.fail(p, "share has neither a proof nor fragments")
		}
		out[i] = s
	}
	return out
}

func (d *decoder) election(w *wireElection) *Election {
	if w.Parameters == nil {
		d.fail("parameters", "missing")
		return nil
	}
	e := &Election{
		Parameters: Parameters{
			Date:        w.Parameters.Date,
			Location:    w.Parameters.Location,
			NumTrustees: d.count("parameters.num_trustees", w.Parameters.NumTrustees),
			Threshold:   d.count("parameters.threshold", w.Parameters.Threshold),
			Prime:       d.int("parameters.prime", w.Parameters.Prime),
			Generator:   d.int("parameters.generator", w.Parameters.Generator),
		},
		BaseHash:         d.int("base_hash", w.BaseHash),
		JointPublicKey:   d.int("joint_public_key", w.JointPublicKey),
		ExtendedBaseHash: d.int("extended_base_hash", w.ExtendedBaseHash),
	}

	for i, keyset := range w.TrusteePublicKeys {
		tpk := &TrusteePublicKey{}
		for j, c := range keyset {
			p := fmt.Sprintf("trustee_public_keys[%d][%d]", i, j)
			if c == nil {
				d.fail(p, "missing")
				return nil
			}
			tpk.Coefficients = append(tpk.Coefficients, &TrusteeCoefficient{
				PublicKey: d.int(p+".public_key", c.PublicKey),
				Proof:     d.schnorr(p+".proof", c.Proof),
			})
		}
		e.TrusteePublicKeys = append(e.TrusteePublicKeys, tpk)
	}

	for i, b := range w.CastBallots {
		p := fmt.Sprintf("cast_ballots[%d]", i)
		if b == nil {
			d.fail(p, "missing")
			return nil
		}
		cb := &CastBallot{Info: d.info(b.Info)}
		for j, c := range b.Contests {
			cp := fmt.Sprintf("%s.contests[%d]", p, j)
			if c == nil {
				d.fail(cp, "missing")
				return nil
			}
			cc := &CastContest{
				MaxSelections:      d.count(cp+".max_selections", c.MaxSelections),
				NumSelectionsProof: d.chaumPedersen(cp+".num_selections_proof", c.NumSelectionsProof),
			}
			for k, s := range c.Selections {
				sp := fmt.Sprintf("%s.selections[%d]", cp, k)
				if s == nil {
					d.fail(sp, "missing")
					return nil
				}
				cc.Selections = append(cc.Selections, &CastSelection{
					Message: d.message(sp+".message", s.Message),
					Proof: &elgamal.DisjunctiveProof{
						Zero: d.chaumPedersen(sp+".zero_proof", s.ZeroProof),
						One:  d.chaumPedersen(sp+".one_proof", s.OneProof),
					},
				})
			}
			cb.Contests = append(cb.Contests, cc)
		}
		e.CastBallots = append(e.CastBallots, cb)
	}

	for i, contest := range w.ContestTallies {
		var out []*Decryption
		for j, t := range contest {
			p := fmt.Sprintf("contest_tallies[%d][%d]", i, j)
			if t == nil {
				d.fail(p, "missing")
				return nil
			}
			out = append(out, &Decryption{
				Cleartext: d.int(p+".cleartext", t.Cleartext),
				Decrypted: d.int(p+".decrypted_tally", t.DecryptedTally),
				Encrypted: d.message(p+".encrypted_tally", t.EncryptedTally),
				Shares:    d.shares(p+".shares", t.Shares),
			})
		}
		e.ContestTallies = append(e.ContestTallies, out)
	}

	for i, b := range w.SpoiledBallots {
		p := fmt.Sprintf("spoiled_ballots[%d]", i)
		if b == nil {
			d.fail(p, "missing")
			return nil
		}
		sb := &SpoiledBallot{Info: d.info(b.Info)}
		for j, contest := range b.Contests {
			var out []*Decryption
			for k, s := range contest {
				sp := fmt.Sprintf("%s.contests[%d][%d]", p, j, k)
				if s == nil {
					d.fail(sp, "missing")
					return nil
				}
				out = append(out, &Decryption{
					Cleartext: d.int(sp+".cleartext", s.Cleartext),
					Decrypted: d.int(sp+".decrypted_message", s.DecryptedMessage),
					Encrypted: d.message(sp+".encrypted_message", s.EncryptedMessage),
					Shares:    d.shares(sp+".shares", s.Shares),
				})
			}
			sb.Contests = append(sb.Contests, out)
		}
		e.SpoiledBallots = append(e.SpoiledBallots, sb)
	}

	for i, m := range w.Manifest {
		p := fmt.Sprintf("manifest[%d]", i)
		if m == nil {
			d.fail(p, "missing")
			return nil
		}
		e.Manifest = append(e.Manifest, ContestDescription{
			ID:            m.ID,
			NumSelections: d.count(p+".num_selections", m.NumSelections),
			MaxSelections: d.count(p+".max_selections", m.MaxSelections),
		})
	}
	return e
}

// Encode writes e in the published JSON format.
func Encode(wr io.Writer, e *Election) error {
	enc := json.NewEncoder(wr)
	enc.SetIndent("", "  ")
	return enc.Encode(toWire(e))
}

func str(x *big.Int) string {
	return crypto.BigIntToJSON(x)
}

func messageToWire(ct *elgamal.CipherText) *wireMessage {
	if ct == nil {
		return nil
	}
	return &wireMessage{PublicKey: str(ct.A), Ciphertext: str(ct.B)}
}

func chaumPedersenToWire(p *elgamal.ChaumPedersenProof) *wireChaumPedersen {
	if p == nil {
		return nil
	}
	return &wireChaumPedersen{
		Commitment: wireMessage{PublicKey: str(p.A), Ciphertext: str(p.B)},
		Challenge:  str(p.C),
		Response:   str(p.U),
	}
}

func infoToWire(i BallotInfo) wireBallotInfo {
	return wireBallotInfo{Date: i.Date, DeviceInfo: i.DeviceInfo, Time: i.Time, Tracker: i.Tracker}
}

func sharesToWire(shares []*Share) []*wireShare {
	out := make([]*wireShare, len(shares))
	for i, s := range shares {
		ws := &wireShare{Share: str(s.Share), Proof: chaumPedersenToWire(s.Proof)}
		for _, f := range s.Fragments {
			ws.Fragments = append(ws.Fragments, &wireFragment{
				Fragment:            str(f.Fragment),
				LagrangeCoefficient: str(f.LagrangeCoefficient),
				Proof:               chaumPedersenToWire(f.Proof),
				TrusteeIndex:        strconv.Itoa(f.TrusteeIndex),
			})
		}
		out[i] = ws
	}
	return out
}

func toWire(e *Election) *wireElection {
	w := &wireElection{
		Parameters: &wireParameters{
			Date:        e.Parameters.Date,
			Location:    e.Parameters.Location,
			NumTrustees: strconv.Itoa(e.Parameters.NumTrustees),
			Threshold:   strconv.Itoa(e.Parameters.Threshold),
			Prime:       str(e.Parameters.Prime),
			Generator:   str(e.Parameters.Generator),
		},
		BaseHash:         str(e.BaseHash),
		JointPublicKey:   str(e.JointPublicKey),
		ExtendedBaseHash: str(e.ExtendedBaseHash),
	}
	for _, t := range e.TrusteePublicKeys {
		var keyset []*wireCoefficient
		for _, c := range t.Coefficients {
			wc := &wireCoefficient{PublicKey: str(c.PublicKey)}
			if c.Proof != nil {
				wc.Proof = &wireSchnorr{Commitment: str(c.Proof.K), Challenge: str(c.Proof.C), Response: str(c.Proof.U)}
			}
			keyset = append(keyset, wc)
		}
		w.TrusteePublicKeys = append(w.TrusteePublicKeys, keyset)
	}
	for _, b := range e.CastBallots {
		wb := &wireCastBallot{Info: infoToWire(b.Info)}
		for _, c := range b.Contests {
			wc := &wireContest{
				MaxSelections:      strconv.Itoa(c.MaxSelections),
				NumSelectionsProof: chaumPedersenToWire(c.NumSelectionsProof),
			}
			for _, s := range c.Selections {
				ws := &wireSelection{Message: messageToWire(s.Message)}
				if s.Proof != nil {
					ws.ZeroProof = chaumPedersenToWire(s.Proof.Zero)
					ws.OneProof = chaumPedersenToWire(s.Proof.One)
				}
				wc.Selections = append(wc.Selections, ws)
			}
			wb.Contests = append(wb.Contests, wc)
		}
		w.CastBallots = append(w.CastBallots, wb)
	}
	for _, contest := range e.ContestTallies {
		var out []*wireTally
		for _, t := range contest {
			out = append(out, &wireTally{
				Cleartext:      str(t.Cleartext),
				DecryptedTally: str(t.Decrypted),
				EncryptedTally: messageToWire(t.Encrypted),
				Shares:         sharesToWire(t.Shares),
			})
		}
		w.ContestTallies = append(w.ContestTallies, out)
	}
	for _, b := range e.SpoiledBallots {
		wb := &wireSpoiledBallot{Info: infoToWire(b.Info)}
		for _, contest := range b.Contests {
			var out []*wireSpoiledSelection
			for _, s := range contest {
				out = append(out, &wireSpoiledSelection{
					Cleartext:        str(s.Cleartext),
					DecryptedMessage: str(s.Decrypted),
					EncryptedMessage: messageToWire(s.Encrypted),
					Shares:           sharesToWire(s.Shares),
				})
			}
			wb.Contests = append(wb.Contests, out)
		}
		w.SpoiledBallots = append(w.SpoiledBallots, wb)
	}
	for _, m := range e.Manifest {
		w.Manifest = append(w.Manifest, &wireManifestContest{
			ID:            m.ID,
			NumSelections: strconv.Itoa(m.NumSelections),
			MaxSelections: strconv.Itoa(m.MaxSelections),
		})
	}
	return w
}
