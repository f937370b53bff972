package upnp

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// upnpError is the subset of a SOAP fault body carrying the UPnPError
// code/description pair AVTransport services return.
type upnpError struct {
	XMLName     xml.Name `xml:"Envelope"`
	Body        struct {
		Fault struct {
			Detail struct {
				UPnPError struct {
					ErrorCode        int    `xml:"errorCode"`
					ErrorDescription string `xml:"errorDescription"`
				} `xml:"UPnPError"`
			} `xml:"detail"`
		} `xml:"Fault"`
	} `xml:"Body"`
}

// soapCall invokes action on serviceType at controlURL with the given
// argument pairs. Grounded on the teacher's SOAP envelope shape
// (internal/api/soap.go), used there to decode an incoming ContentDirectory
// request, here to encode an outgoing AVTransport action call instead.
func soapCall(ctx context.Context, controlURL, serviceType, action string, args map[string]string) error {
	var argXML strings.Builder
	for k, v := range args {
		fmt.Fprintf(&argXML, "<%s>%s</%s>", k, escapeXML(v), k)
	}

	body := fmt.Sprintf(
		`<u:%s xmlns:u="%s">%s</u:%s>`,
		action, serviceType, argXML.String(), action,
	)
	envelope := fmt.Sprintf(
		`<?xml version="1.0"?>`+
			`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" `+
			`s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">`+
			`<s:Body>%s</s:Body></s:Envelope>`,
		body,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, controlURL, bytes.NewReader([]byte(envelope)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPAction", fmt.Sprintf(`"%s#%s"`, serviceType, action))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("upnp: soap call %s: %w", action, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		var fault upnpError
		if xml.Unmarshal(respBody, &fault) == nil && fault.Body.Fault.Detail.UPnPError.ErrorDescription != "" {
			return fmt.Errorf("upnp: %s failed: %s", action, fault.Body.Fault.Detail.UPnPError.ErrorDescription)
		}
		return fmt.Errorf("upnp: %s failed: http %d", action, resp.StatusCode)
	}

	return nil
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
