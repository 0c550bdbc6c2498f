package terraform

import (
	"reflect"
	"testing"
)

const networkArtifact = `provider "aws" {
  region = "us-east-1"
}

variable "env" {
  default = "dev"
}

resource "aws_vpc" "main" {
  cidr_block           = "10.0.0.0/16"
  enable_dns_hostnames = true

  tags = {
    Name = "main"
  }
}

resource "aws_subnet" "public" {
  vpc_id     = aws_vpc.main.id
  cidr_block = "10.0.1.0/24"
}

resource "aws_internet_gateway" "gw" {
  vpc_id = aws_vpc.main.id
}

resource "aws_security_group" "web" {
  name   = "web-${var.env}"
  vpc_id = aws_vpc.main.id

  ingress {
    from_port   = 22
    to_port     = 22
    protocol    = "tcp"
    cidr_blocks = ["0.0.0.0/0"]
  }
}

resource "aws_instance" "web" {
  ami           = "ami-123"
  instance_type = "t3.micro"
  subnet_id     = aws_subnet.public.id
}

data "aws_ami" "ubuntu" {
  most_recent = true
}

output "vpc_id" {
  value = aws_vpc.main.id
}
`

func TestParse(t *testing.T) {
	m, diags := ParseString(networkArtifact)
	if diags.HasErrors() {
		t.Fatalf("Parse failed: %s", diags.Error())
	}

	wantAddrs := []string{
		"aws_vpc.main",
		"aws_subnet.public",
		"aws_internet_gateway.gw",
		"aws_security_group.web",
		"aws_instance.web",
	}
	if got := m.Addresses(); !reflect.DeepEqual(got, wantAddrs) {
		t.Errorf("Addresses() = %v, want %v", got, wantAddrs)
	}

	if !reflect.DeepEqual(m.Providers, []string{"aws"}) {
		t.Errorf("Providers = %v", m.Providers)
	}
	if !reflect.DeepEqual(m.DataSources, []string{"data.aws_ami.ubuntu"}) {
		t.Errorf("DataSources = %v", m.DataSources)
	}
	if !reflect.DeepEqual(m.Variables, []string{"env"}) || !reflect.DeepEqual(m.Outputs, []string{"vpc_id"}) {
		t.Errorf("Variables = %v, Outputs = %v", m.Variables, m.Outputs)
	}

	if counts := m.TypeCounts(); counts["aws_vpc"] != 1 || counts["aws_instance"] != 1 {
		t.Errorf("Unexpected type counts: %v", counts)
	}
}

func TestParse_Attributes(t *testing.T) {
	m, diags := ParseString(networkArtifact)
	if diags.HasErrors() {
		t.Fatalf("Parse failed: %s", diags.Error())
	}

	vpc, ok := m.Lookup("aws_vpc.main")
	if !ok {
		t.Fatal("aws_vpc.main not found")
	}
	if vpc.Attributes["cidr_block"] != "10.0.0.0/16" {
		t.Errorf("cidr_block = %v", vpc.Attributes["cidr_block"])
	}
	if vpc.Attributes["enable_dns_hostnames"] != true {
		t.Errorf("enable_dns_hostnames = %v", vpc.Attributes["enable_dns_hostnames"])
	}
	tags, ok := vpc.Attributes["tags"].(map[string]interface{})
	if !ok || tags["Name"] != "main" {
		t.Errorf("tags = %v", vpc.Attributes["tags"])
	}
	if vpc.Line != 9 {
		t.Errorf("Line = %d, want 9", vpc.Line)
	}

	sg, _ := m.Lookup("aws_security_group.web")
	if sg.Attributes["vpc_id"] != "aws_vpc.main.id" {
		t.Errorf("Expected the reference source text, got %v", sg.Attributes["vpc_id"])
	}
	ingress, ok := sg.Attributes["ingress"].([]interface{})
	if !ok || len(ingress) != 1 {
		t.Fatalf("ingress = %v", sg.Attributes["ingress"])
	}
	rule := ingress[0].(map[string]interface{})
	if rule["from_port"] != float64(22) {
		t.Errorf("from_port = %v", rule["from_port"])
	}
	cidrs, _ := rule["cidr_blocks"].([]interface{})
	if len(cidrs) != 1 || cidrs[0] != "0.0.0.0/0" {
		t.Errorf("cidr_blocks = %v", rule["cidr_blocks"])
	}
}

func TestParse_References(t *testing.T) {
	m, _ := ParseString(networkArtifact)

	inst, _ := m.Lookup("aws_instance.web")
	want := []Reference{{Address: "aws_subnet.public", Attribute: "id"}}
	if !reflect.DeepEqual(inst.References, want) {
		t.Errorf("References = %v, want %v", inst.References, want)
	}

	sg, _ := m.Lookup("aws_security_group.web")
	for _, ref := range sg.References {
		if ref.Address == "var.env" {
			t.Error("Variables must not be reported as resource references")
		}
	}
}

func TestResourceAddresses(t *testing.T) {
	got := ResourceAddresses(networkArtifact)
	if len(got) != 5 || got[0] != "aws_vpc.main" {
		t.Errorf("ResourceAddresses() = %v", got)
	}

	broken := "resource \"aws_s3_bucket\" \"data\" {\n  bucket = \n"
	if got := ResourceAddresses(broken); !reflect.DeepEqual(got, []string{"aws_s3_bucket.data"}) {
		t.Errorf("Expected header scan fallback, got %v", got)
	}
}
