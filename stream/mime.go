package stream

import (
	"bytes"
	goerrors "errors"
	"io"
	"mime"
	"net/mail"
	"net/textproto"

	gomime "github.com/ProtonMail/go-mime"
	"github.com/pkg/errors"

	"github.com/pgpstream/pgpstream/internal"
)

// MIMECallbacks receives the parts of a processed MIME message.
type MIMECallbacks interface {
	OnBody(body string, mimetype string)
	OnAttachment(headers string, data []byte)
	// Encrypted headers can be in an attachment and thus be placed at the end of the mime structure.
	OnEncryptedHeaders(headers string)
	OnVerified(status SignatureStatus)
	OnError(err error)
}

// DecryptMIME decrypts a MIME message and walks its structure, delivering
// body, attachments, and the combined verification outcome through the
// callbacks. The decryption handle processes the outer message; the verify
// handle, when non-nil, additionally checks a multipart/signed signature
// inside the decrypted MIME structure. The message counts as verified when
// either the embedded signatures or the MIME signature check out.
func DecryptMIME(message io.Reader, decryption *DecryptHandle, verify *VerifyHandle, callbacks MIMECallbacks) {
	reader, err := decryption.DecryptingReader(message)
	if err != nil {
		callbacks.OnError(err)
		return
	}
	plaintext, err := reader.ReadAll()
	if err != nil {
		callbacks.OnError(err)
		return
	}
	embeddedErr := embeddedSignatureError(reader)

	body, attachments, attachmentHeaders, mimeErr, err := parseMIME(plaintext, verify)
	if err != nil {
		callbacks.OnError(err)
		return
	}
	// Every path reports a verdict, including verify-less decryption.
	switch {
	case embeddedErr == nil:
		callbacks.OnVerified(SignatureGood)
	case verify != nil && mimeErr == nil:
		callbacks.OnVerified(SignatureGood)
	default:
		callbacks.OnError(embeddedErr)
		if mimeErr != nil {
			callbacks.OnError(mimeErr)
		}
		callbacks.OnVerified(worstStatus(embeddedErr, mimeErr))
	}

	bodyContent, bodyMimeType := body.GetBody()
	callbacks.OnBody(internal.SanitizeString(bodyContent), bodyMimeType)
	for i := 0; i < len(attachments); i++ {
		callbacks.OnAttachment(attachmentHeaders[i], []byte(attachments[i]))
	}
	callbacks.OnEncryptedHeaders("")
}

// embeddedSignatureError reduces the structure of a processed message to a
// single signature outcome: nil when every signature group holds a good
// signature, the last failure otherwise.
func embeddedSignatureError(mr *MessageReader) *SignatureVerificationError {
	structure, err := mr.Structure()
	if err != nil {
		return newSignatureError(SignatureMissingKey, "message was not fully processed", err)
	}
	groups := 0
	for _, layer := range structure.Layers {
		if layer.Kind != LayerSignatureGroup {
			continue
		}
		groups++
		good := false
		var lastErr *SignatureVerificationError
		for _, signature := range layer.Signatures {
			if signature.Error == nil {
				good = true
				break
			}
			lastErr = signature.Error
		}
		if !good {
			if lastErr == nil {
				lastErr = newSignatureError(SignatureMissingKey, "signature group is empty", nil)
			}
			return lastErr
		}
	}
	if groups == 0 {
		return newSignatureError(SignatureMissingKey, "message carries no signature", nil)
	}
	return nil
}

// worstStatus selects the most severe of the given failures.
func worstStatus(failures ...*SignatureVerificationError) SignatureStatus {
	worst := SignatureGood
	for _, failure := range failures {
		if failure != nil && failure.Status > worst {
			worst = failure.Status
		}
	}
	return worst
}

func parseMIME(
	mimeBody []byte,
	verify *VerifyHandle,
) (*gomime.BodyCollector, []string, []string, *SignatureVerificationError, error) {
	mm, err := mail.ReadMessage(bytes.NewReader(mimeBody))
	if err != nil {
		return nil, nil, nil, nil, errors.Wrap(err, "pgpstream: reading mime message failed")
	}
	h := textproto.MIMEHeader(mm.Header)
	mmBodyData, err := io.ReadAll(mm.Body)
	if err != nil {
		return nil, nil, nil, nil, errors.Wrap(err, "pgpstream: reading mime body failed")
	}

	printAccepter := gomime.NewMIMEPrinter()
	bodyCollector := gomime.NewBodyCollector(printAccepter)
	attachmentsCollector := gomime.NewAttachmentsCollector(bodyCollector)
	mimeVisitor := gomime.NewMimeVisitor(attachmentsCollector)
	collector := newSignatureCollector(mimeVisitor, verify)

	if err := gomime.VisitAll(bytes.NewReader(mmBodyData), h, collector); err != nil {
		return nil, nil, nil, nil, errors.Wrap(err, "pgpstream: walking mime structure failed")
	}
	var mimeErr *SignatureVerificationError
	if verify != nil {
		mimeErr = collector.verified
	}
	return bodyCollector,
		attachmentsCollector.GetAttachments(),
		attachmentsCollector.GetAttHeaders(),
		mimeErr,
		nil
}

// signatureCollector intercepts multipart/signed parts on the way through
// the MIME visitor chain and verifies their detached signature over the
// canonicalized raw body.
type signatureCollector struct {
	handle    *VerifyHandle
	target    gomime.VisitAcceptor
	signature string
	verified  *SignatureVerificationError
}

func newSignatureCollector(target gomime.VisitAcceptor, handle *VerifyHandle) *signatureCollector {
	return &signatureCollector{
		target: target,
		handle: handle,
	}
}

func (sc *signatureCollector) Accept(
	part io.Reader, header textproto.MIMEHeader,
	hasPlainSibling, isFirst, isLast bool,
) error {
	parentMediaType, params, _ := mime.ParseMediaType(header.Get("Content-Type"))
	if parentMediaType != "multipart/signed" {
		sc.verified = newSignatureError(SignatureMissingKey, "part carries no signature", nil)
		return sc.target.Accept(part, header, hasPlainSibling, isFirst, isLast)
	}

	newPart, rawBody := gomime.GetRawMimePart(part, "--"+params["boundary"])
	multiparts, multipartHeaders, err := gomime.GetMultipartParts(newPart, params)
	if err != nil {
		return err
	}

	hasPlainChild := false
	for _, header := range multipartHeaders {
		mediaType, _, _ := mime.ParseMediaType(header.Get("Content-Type"))
		hasPlainChild = mediaType == "text/plain"
	}
	if len(multiparts) != 2 {
		sc.verified = newSignatureError(SignatureMissingKey, "part carries no signature", nil)
		// Invalid multipart/signed format just pass along
		if _, err = io.ReadAll(rawBody); err != nil {
			return errors.Wrap(err, "pgpstream: reading raw mime body failed")
		}
		for i, p := range multiparts {
			if err = sc.target.Accept(p, multipartHeaders[i], hasPlainChild, true, true); err != nil {
				return err
			}
		}
		return nil
	}

	if err = sc.target.Accept(multiparts[0], multipartHeaders[0], hasPlainChild, true, true); err != nil {
		return errors.Wrap(err, "pgpstream: parsing signed part failed")
	}

	partData, err := io.ReadAll(multiparts[1])
	if err != nil {
		return errors.Wrap(err, "pgpstream: reading signature part failed")
	}
	decodedPart := gomime.DecodeContentEncoding(
		bytes.NewReader(partData),
		multipartHeaders[1].Get("Content-Transfer-Encoding"))
	sigBytes, err := io.ReadAll(decodedPart)
	if err != nil {
		return errors.Wrap(err, "pgpstream: decoding signature part failed")
	}
	mediaType, _, _ := mime.ParseMediaType(header.Get("Content-Type"))
	sigBytes, err = gomime.DecodeCharset(sigBytes, mediaType, params)
	if err != nil {
		return errors.Wrap(err, "pgpstream: decoding signature charset failed")
	}
	sc.signature = string(sigBytes)

	raw, _ := io.ReadAll(rawBody)
	canonical := internal.CanonicalizeBytes(internal.TrimEachLineBytes(raw))
	if sc.handle == nil {
		sc.verified = newSignatureError(SignatureMissingKey, "no verification handle", nil)
		return nil
	}
	_, err = sc.handle.VerifyDetached(bytes.NewReader(canonical), bytes.NewReader(sigBytes))
	if err != nil {
		var sigErr *SignatureVerificationError
		if goerrors.As(err, &sigErr) {
			sc.verified = sigErr
			return nil
		}
		return errors.Wrap(err, "pgpstream: mime signature verification failed")
	}
	sc.verified = nil
	return nil
}

// GetSignature returns the armored signature collected by Accept.
func (sc *signatureCollector) GetSignature() string {
	return sc.signature
}
