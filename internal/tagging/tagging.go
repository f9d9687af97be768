package tagging

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"

	"github.com/cesargomez89/dictation/internal/constants"
	"github.com/cesargomez89/dictation/internal/domain"
)

const lyricsField = "LYRICS"

// Metadata is what gets embedded into an audio artifact. Empty fields are
// left untouched in the file.
type Metadata struct {
	Title    string
	Cover    []byte
	Segments []domain.Segment
}

// Tagger writes and reads tags of audio artifacts
type Tagger struct{}

func New() *Tagger {
	return &Tagger{}
}

// TagFile writes metadata tags to the audio file at filePath.
func (t *Tagger) TagFile(filePath string, md Metadata) error {
	return TagFile(filePath, md)
}

// ReadTitle returns the title tag of the audio file at filePath
func (t *Tagger) ReadTitle(filePath string) (string, error) {
	return ReadTitle(filePath)
}

// EmbedTranscript stores segments as time-coded lyrics in the audio file
func (t *Tagger) EmbedTranscript(filePath string, segments []domain.Segment) error {
	return TagFile(filePath, Metadata{Segments: segments})
}

// TagFile writes metadata tags to the audio file at filePath.
func TagFile(filePath string, md Metadata) error {
	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".flac":
		return tagFLAC(filePath, md)
	case ".mp3":
		return tagMP3(filePath, md)
	default:
		return fmt.Errorf("unsupported file format: %s", ext)
	}
}

// ReadTitle returns the title tag of the audio file at filePath, or an empty
// string when the file carries none.
func ReadTitle(filePath string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".flac":
		return readFLACTitle(filePath)
	case ".mp3":
		return readMP3Title(filePath)
	default:
		return "", fmt.Errorf("unsupported file format: %s", ext)
	}
}

// tagMP3 writes ID3v2 tags to an MP3 file.
func tagMP3(filePath string, md Metadata) error {
	tag, err := id3v2.Open(filePath, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open MP3 file: %w", err)
	}
	defer tag.Close()

	tag.SetVersion(4)

	if md.Title != "" {
		tag.SetTitle(md.Title)
	}
	if len(md.Segments) > 0 {
		tag.DeleteFrames(tag.CommonID("Unsynchronised lyrics/text transcription"))
		tag.AddUnsynchronisedLyricsFrame(id3v2.UnsynchronisedLyricsFrame{
			Encoding:          id3v2.EncodingUTF8,
			Language:          "eng",
			ContentDescriptor: "LRC",
			Lyrics:            FormatLRC(md.Segments),
		})
	}
	if len(md.Cover) > 0 {
		tag.DeleteFrames(tag.CommonID("Attached picture"))
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    detectMime(md.Cover),
			PictureType: id3v2.PTFrontCover,
			Description: "Front Cover",
			Picture:     md.Cover,
		})
	}

	return tag.Save()
}

func readMP3Title(filePath string) (string, error) {
	tag, err := id3v2.Open(filePath, id3v2.Options{Parse: true})
	if err != nil {
		return "", fmt.Errorf("failed to open MP3 file: %w", err)
	}
	defer tag.Close()

	return strings.TrimSpace(tag.Title()), nil
}

// tagFLAC rewrites the Vorbis comment block and, when a cover is given, the
// front-cover picture block. Audio frames are copied through untouched.
func tagFLAC(filePath string, md Metadata) error {
	f, err := flac.ParseFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to open FLAC file: %w", err)
	}

	cmts, idx, err := vorbisComments(f)
	if err != nil {
		return err
	}

	if md.Title != "" {
		setComment(cmts, flacvorbis.FIELD_TITLE, md.Title)
	}
	if len(md.Segments) > 0 {
		setComment(cmts, lyricsField, FormatLRC(md.Segments))
	}

	block := cmts.Marshal()
	if idx >= 0 {
		f.Meta[idx] = &block
	} else {
		f.Meta = append(f.Meta, &block)
	}

	if len(md.Cover) > 0 {
		pic, err := flacpicture.NewFromImageData(flacpicture.PictureTypeFrontCover, "Front cover", md.Cover, detectMime(md.Cover))
		if err != nil {
			return fmt.Errorf("failed to build cover picture: %w", err)
		}
		picBlock := pic.Marshal()

		kept := f.Meta[:0]
		for _, m := range f.Meta {
			if m.Type != flac.Picture {
				kept = append(kept, m)
			}
		}
		f.Meta = append(kept, &picBlock)
	}

	if err := f.Save(filePath); err != nil {
		return fmt.Errorf("failed to save FLAC file: %w", err)
	}
	return nil
}

func readFLACTitle(filePath string) (string, error) {
	f, err := flac.ParseFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open FLAC file: %w", err)
	}

	cmts, _, err := vorbisComments(f)
	if err != nil {
		return "", err
	}

	titles, err := cmts.Get(flacvorbis.FIELD_TITLE)
	if err != nil || len(titles) == 0 {
		return "", nil
	}
	return strings.TrimSpace(titles[0]), nil
}

// vorbisComments returns the parsed comment block of f and its position, or
// a fresh block and -1 when f has none.
func vorbisComments(f *flac.File) (*flacvorbis.MetaDataBlockVorbisComment, int, error) {
	for i, meta := range f.Meta {
		if meta.Type != flac.VorbisComment {
			continue
		}
		cmts, err := flacvorbis.ParseFromMetaDataBlock(*meta)
		if err != nil {
			return nil, -1, fmt.Errorf("failed to parse vorbis comments: %w", err)
		}
		return cmts, i, nil
	}
	return flacvorbis.New(), -1, nil
}

// setComment replaces every value of field with value
func setComment(cmts *flacvorbis.MetaDataBlockVorbisComment, field, value string) {
	prefix := strings.ToUpper(field) + "="
	kept := cmts.Comments[:0]
	for _, c := range cmts.Comments {
		if !strings.HasPrefix(strings.ToUpper(c), prefix) {
			kept = append(kept, c)
		}
	}
	cmts.Comments = kept
	_ = cmts.Add(field, value)
}

func detectMime(data []byte) string {
	mime := http.DetectContentType(data)
	if idx := strings.Index(mime, ";"); idx != -1 {
		mime = strings.TrimSpace(mime[:idx])
	}
	if !strings.HasPrefix(mime, "image/") {
		return constants.MimeTypeJPEG
	}
	return mime
}
