// Package frames turns raw video bytes into ordered sequences of RGBA
// frames ready for GIF encoding.
//
// Video decoding is delegated to ffmpeg/ffprobe subprocesses; the package
// shells out with context-aware commands and reads raw rgba pixel data from
// ffmpeg's stdout. Still images (for posts whose attachment is a picture
// rather than a clip) are decoded in-process and produce single-frame
// sequences. All output dimensions are even, as the encoder requires.
package frames
