package cainterface

import (
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/addspin/tlsca/ca"
	"github.com/addspin/tlsca/crypts"
)

// Operation - операция оператора над УЦ
type Operation string

const (
	Destroy     Operation = "destroy"
	List        Operation = "list"
	Revoke      Operation = "revoke"
	Generate    Operation = "generate"
	Sign        Operation = "sign"
	Print       Operation = "print"
	Verify      Operation = "verify"
	Fingerprint Operation = "fingerprint"
	Reinventory Operation = "reinventory"
)

// DefaultDigest - алгоритм отпечатка, если он не задан
const DefaultDigest = "SHA256"

// CertificateAuthority - то, что интерфейсу нужно от УЦ
type CertificateAuthority interface {
	List() ([]string, error)
	ListHosts(hosts []string) ([]string, error)
	Waiting() ([]string, error)
	Sign(name string, allowDNSAltNames bool) error
	Generate(name string, dnsAltNames []string) error
	Revoke(name string) error
	Destroy(name string) error
	Print(name string) (string, error)
	Verify(name string) error
	Certificate(name string) (*x509.Certificate, error)
	CertificateRequest(name string) (*x509.CertificateRequest, error)
	RebuildInventory() error
}

// ArgumentError - операция вызвана с неверным набором узлов
type ArgumentError struct {
	msg string
}

func (e *ArgumentError) Error() string { return e.msg }

// InterfaceError - операцию нельзя выполнить в текущем состоянии УЦ.
// Через errors.As она также распознается как *ArgumentError
type InterfaceError struct {
	msg string
}

func (e *InterfaceError) Error() string { return e.msg }

func (e *InterfaceError) Unwrap() error { return &ArgumentError{msg: e.msg} }

type subjectKind int

const (
	noSubjects subjectKind = iota
	allSubjects
	signedSubjects
	explicitSubjects
)

// Subjects - набор узлов, к которым применяется операция.
// Нулевое значение означает, что узлы не указаны
type Subjects struct {
	kind  subjectKind
	hosts []string
}

// AllSubjects выбирает все узлы
func AllSubjects() Subjects { return Subjects{kind: allSubjects} }

// SignedSubjects выбирает только подписанные узлы (имеет смысл для list)
func SignedSubjects() Subjects { return Subjects{kind: signedSubjects} }

// Hosts выбирает явный список узлов
func Hosts(names ...string) Subjects {
	return Subjects{kind: explicitSubjects, hosts: names}
}

func (s Subjects) String() string {
	switch s.kind {
	case allSubjects:
		return "all"
	case signedSubjects:
		return "signed"
	case explicitSubjects:
		return strings.Join(s.hosts, ",")
	}
	return ""
}

// Options - параметры операции
type Options struct {
	Digest           string
	AllowDNSAltNames bool
	DNSAltNames      []string
	Out              io.Writer
}

// Interface применяет одну операцию к набору узлов
type Interface struct {
	op       Operation
	subjects Subjects
	opts     Options
	actions  map[Operation]func(CertificateAuthority) error
}

var (
	subjectless = []Operation{List, Reinventory}
	destructive = []Operation{Destroy, Revoke}
)

// New проверяет операцию и готовит интерфейс к применению
func New(op Operation, subjects Subjects, opts Options) (*Interface, error) {
	if opts.Digest == "" {
		opts.Digest = DefaultDigest
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	i := &Interface{op: op, subjects: subjects, opts: opts}
	i.actions = map[Operation]func(CertificateAuthority) error{
		Destroy:     i.each(CertificateAuthority.Destroy),
		Revoke:      i.each(CertificateAuthority.Revoke),
		Verify:      i.each(CertificateAuthority.Verify),
		List:        i.list,
		Generate:    i.generate,
		Sign:        i.sign,
		Print:       i.print,
		Fingerprint: i.fingerprint,
		Reinventory: i.reinventory,
	}
	if _, ok := i.actions[op]; !ok {
		return nil, &ArgumentError{msg: fmt.Sprintf("Invalid method %s to apply", op)}
	}
	return i, nil
}

// Apply выполняет операцию против УЦ
func (i *Interface) Apply(authority CertificateAuthority) error {
	if i.subjects.kind == noSubjects && !slices.Contains(subjectless, i.op) {
		return &ArgumentError{msg: fmt.Sprintf("You must provide hosts or --all when using %s", i.op)}
	}
	if slices.Contains(destructive, i.op) {
		switch i.subjects.kind {
		case allSubjects:
			return &ArgumentError{msg: fmt.Sprintf("Refusing to %s all certs, provide an explicit list of certs to %s", i.op, i.op)}
		case signedSubjects:
			return &ArgumentError{msg: fmt.Sprintf("Refusing to %s all signed certs, provide an explicit list of certs to %s", i.op, i.op)}
		}
	}
	if i.subjects.kind == signedSubjects && i.op != List {
		return &ArgumentError{msg: fmt.Sprintf("--signed can only be used with list, not %s", i.op)}
	}

	slog.Debug("CA: Применение операции", "operation", i.op, "subjects", i.subjects.String())
	return i.actions[i.op](authority)
}

// each вызывает метод УЦ для каждого узла и прерывается на первой ошибке
func (i *Interface) each(method func(CertificateAuthority, string) error) func(CertificateAuthority) error {
	return func(authority CertificateAuthority) error {
		hosts, err := i.resolve(authority)
		if err != nil {
			return err
		}
		for _, host := range hosts {
			if err := method(authority, host); err != nil {
				return err
			}
		}
		return nil
	}
}

func (i *Interface) resolve(authority CertificateAuthority) ([]string, error) {
	if i.subjects.kind == allSubjects {
		return authority.List()
	}
	return i.subjects.hosts, nil
}

func (i *Interface) generate(authority CertificateAuthority) error {
	if i.subjects.kind == allSubjects {
		return &InterfaceError{msg: "It makes no sense to generate all hosts; you must specify a list"}
	}
	for _, host := range i.subjects.hosts {
		if err := authority.Generate(host, i.opts.DNSAltNames); err != nil {
			return err
		}
	}
	return nil
}

func (i *Interface) sign(authority CertificateAuthority) error {
	hosts := i.subjects.hosts
	if i.subjects.kind == allSubjects {
		waiting, err := authority.Waiting()
		if err != nil {
			return err
		}
		hosts = waiting
	}
	if len(hosts) == 0 {
		return &InterfaceError{msg: "No waiting certificate requests to sign"}
	}
	for _, host := range hosts {
		if err := authority.Sign(host, i.opts.AllowDNSAltNames); err != nil {
			return err
		}
	}
	return nil
}

func (i *Interface) print(authority CertificateAuthority) error {
	hosts, err := i.resolve(authority)
	if err != nil {
		return err
	}
	for _, host := range hosts {
		text, err := authority.Print(host)
		if err != nil {
			return err
		}
		if text == "" {
			return &ArgumentError{msg: fmt.Sprintf("Could not find certificate for %s", host)}
		}
		fmt.Fprintln(i.opts.Out, strings.TrimRight(text, "\n"))
	}
	return nil
}

func (i *Interface) fingerprint(authority CertificateAuthority) error {
	hosts := i.subjects.hosts
	if i.subjects.kind == allSubjects {
		signed, err := authority.List()
		if err != nil {
			return err
		}
		waiting, err := authority.Waiting()
		if err != nil {
			return err
		}
		hosts = append(signed, waiting...)
	}
	for _, host := range hosts {
		raw, err := certificateOrRequest(authority, host)
		if err != nil {
			return err
		}
		if raw == nil {
			return &ArgumentError{msg: fmt.Sprintf("Could not find certificate for %s", host)}
		}
		digest, err := crypts.Fingerprint(raw, i.opts.Digest)
		if err != nil {
			return err
		}
		fmt.Fprintf(i.opts.Out, "%s %s\n", host, digest)
	}
	return nil
}

func (i *Interface) reinventory(authority CertificateAuthority) error {
	return authority.RebuildInventory()
}

// certificateOrRequest возвращает DER сертификата узла, а если его нет, DER запроса
func certificateOrRequest(authority CertificateAuthority, host string) ([]byte, error) {
	cert, err := authority.Certificate(host)
	if err != nil {
		return nil, err
	}
	if cert != nil {
		return cert.Raw, nil
	}
	csr, err := authority.CertificateRequest(host)
	if err != nil {
		return nil, err
	}
	if csr != nil {
		return csr.Raw, nil
	}
	return nil, nil
}

type hostState int

const (
	stateRequest hostState = iota
	stateSigned
	stateInvalid
)

var glyphs = map[hostState]string{
	stateSigned:  "+",
	stateRequest: " ",
	stateInvalid: "-",
}

type listedHost struct {
	name        string
	state       hostState
	verifyError string
}

func (i *Interface) list(authority CertificateAuthority) error {
	var signed []string
	var err error
	if i.subjects.kind == signedSubjects || i.subjects.kind == allSubjects {
		if signed, err = authority.List(); err != nil {
			return err
		}
	}
	requests, err := authority.Waiting()
	if err != nil {
		return err
	}

	var hosts []string
	switch {
	case i.subjects.kind == allSubjects:
		hosts = append(append(hosts, signed...), requests...)
	case i.subjects.kind == signedSubjects:
		hosts = signed
	case len(i.subjects.hosts) == 0:
		hosts = requests
	default:
		if signed, err = authority.ListHosts(i.subjects.hosts); err != nil {
			return err
		}
		hosts = i.subjects.hosts
	}
	if len(hosts) == 0 {
		return nil
	}

	hosts = slices.Clone(hosts)
	slices.Sort(hosts)
	hosts = slices.Compact(hosts)

	listed := make([]listedHost, 0, len(hosts))
	width := 0
	for _, host := range hosts {
		entry := listedHost{name: host, state: stateRequest}
		if !slices.Contains(requests, host) {
			err := authority.Verify(host)
			var verr *ca.CertificateVerificationError
			switch {
			case errors.As(err, &verr):
				entry.state = stateInvalid
				entry.verifyError = verr.Error()
			case err != nil:
				return err
			}
		}
		if entry.state != stateInvalid && slices.Contains(signed, host) {
			entry.state = stateSigned
		}
		listed = append(listed, entry)
		width = max(width, len(host))
	}
	// имена выводятся в кавычках
	width += 2

	lines := make([]string, 0, len(listed))
	for _, entry := range listed {
		line, err := i.formatHost(authority, entry, width)
		if err != nil {
			return err
		}
		lines = append(lines, line)
	}
	slices.Sort(lines)
	fmt.Fprintln(i.opts.Out, strings.Join(lines, "\n"))
	return nil
}

func (i *Interface) formatHost(authority CertificateAuthority, entry listedHost, width int) (string, error) {
	var raw []byte
	var altNames []string
	if entry.state == stateRequest {
		csr, err := authority.CertificateRequest(entry.name)
		if err != nil {
			return "", err
		}
		if csr == nil {
			return "", fmt.Errorf("could not find certificate request for %s", entry.name)
		}
		raw = csr.Raw
		altNames = ca.AltNames(csr.DNSNames, csr.IPAddresses)
	} else {
		cert, err := authority.Certificate(entry.name)
		if err != nil {
			return "", err
		}
		if cert == nil {
			return "", fmt.Errorf("could not find a certificate for %s", entry.name)
		}
		raw = cert.Raw
		if entry.state == stateSigned {
			altNames = ca.AltNames(cert.DNSNames, cert.IPAddresses)
		}
	}

	digest, err := crypts.Fingerprint(raw, i.opts.Digest)
	if err != nil {
		return "", err
	}

	fields := []string{glyphs[entry.state], padRight(strconv.Quote(entry.name), width), digest}
	altNames = slices.DeleteFunc(altNames, func(n string) bool { return n == "DNS:"+entry.name })
	if len(altNames) > 0 {
		quoted := make([]string, len(altNames))
		for n, name := range altNames {
			quoted[n] = strconv.Quote(name)
		}
		fields = append(fields, "(alt names: "+strings.Join(quoted, ", ")+")")
	}
	if entry.verifyError != "" {
		fields = append(fields, "("+entry.verifyError+")")
	}
	return strings.Join(fields, " "), nil
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

