package meshio

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

func importOBJ(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New("opening mesh failed").
			WithType(ErrTypeIO).
			WithTag("path", path).
			Wrap(err)
	}
	defer f.Close()

	groups, err := decodeOBJ(f)
	if err != nil {
		return nil, errors.New("decoding obj failed").
			WithType(ErrTypeMalformedMesh).
			WithTag("path", path).
			Wrap(err)
	}
	return newModel(path, groups)
}

// decodeOBJ reads the positions and faces of a Wavefront OBJ stream. Every
// "o" or "g" statement starts a new group; polygons are split into triangle
// fans. Texture coordinates, normals and materials are ignored.
func decodeOBJ(r io.Reader) ([][][3]v3.Vec, error) {
	var (
		positions []v3.Vec
		groups    = [][][3]v3.Vec{nil}
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, errors.New("vertex needs three coordinates").WithTag("line", line)
			}
			var p [3]float64
			for i := range p {
				f, err := strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return nil, errors.New("invalid vertex coordinate").
						WithTag("line", line).
						Wrap(err)
				}
				p[i] = f
			}
			positions = append(positions, v3.Vec{X: p[0], Y: p[1], Z: p[2]})

		case "f":
			if len(fields) < 4 {
				return nil, errors.New("face needs three vertices").WithTag("line", line)
			}
			poly := make([]v3.Vec, 0, len(fields)-1)
			for _, ref := range fields[1:] {
				i, err := objIndex(ref, len(positions))
				if err != nil {
					return nil, errors.New("invalid face vertex").
						WithTag("line", line).
						WithTag("vertex", ref).
						Wrap(err)
				}
				poly = append(poly, positions[i])
			}

			g := len(groups) - 1
			for i := 1; i+1 < len(poly); i++ {
				groups[g] = append(groups[g], [3]v3.Vec{poly[0], poly[i], poly[i+1]})
			}

		case "o", "g":
			if len(groups[len(groups)-1]) > 0 {
				groups = append(groups, nil)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return groups, nil
}

// objIndex resolves the position part of a face reference such as "3",
// "3/1" or "-1//2". Negative indices count back from the last position.
func objIndex(ref string, n int) (int, error) {
	pos, _, _ := strings.Cut(ref, "/")
	i, err := strconv.Atoi(pos)
	if err != nil {
		return 0, err
	}

	switch {
	case i > 0:
		i--
	case i < 0:
		i += n
	default:
		return 0, errors.New("index zero")
	}
	if i < 0 || i >= n {
		return 0, errors.Newf("index out of range [1, %d]", n)
	}
	return i, nil
}
